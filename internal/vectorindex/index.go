package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	applog "panrag/internal/platform/log"
)

// 索引目录下的两个成对文件：向量数据 + 旁表。
// 二者必须同时存在才算一个有效索引。
const (
	vectorsFile = "vectors.bin"
	entriesFile = "entries.json"

	fileMagic   = uint32(0x50524749) // "PRGI"
	fileVersion = uint32(1)
)

var (
	// ErrIndexNotFound 索引文件对不存在（load-only 打开时返回）
	ErrIndexNotFound = errors.New("vector index not found")

	// ErrInvalidTopK k <= 0
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrDimensionMismatch 向量维度与索引中已持久化的维度不一致
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Entry 单条索引记录：向量 + 原文 + 任意元数据
type Entry struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Vector   []float32         `json:"-"`
}

// Hit 近邻检索结果，按相似度降序
type Hit struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Index 追加式扁平向量索引，余弦相似度精确检索。
// 内存表示在每次请求中从磁盘重建，正确性只依赖持久化文件。
type Index struct {
	dims    int
	entries []Entry
}

// entriesSidecar entries.json 的持久化结构
type entriesSidecar struct {
	Dims    int     `json:"dims"`
	Count   int     `json:"count"`
	Entries []Entry `json:"entries"`
}

// Load 以 load-only 语义打开索引：文件对缺失返回 ErrIndexNotFound，
// 不会创建任何文件。查询路径使用。
func Load(dir string) (*Index, error) {
	vecPath := filepath.Join(dir, vectorsFile)
	entPath := filepath.Join(dir, entriesFile)

	if !fileExists(vecPath) || !fileExists(entPath) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, dir)
	}

	sidecar, err := readSidecar(entPath)
	if err != nil {
		return nil, err
	}

	vectors, dims, err := readVectors(vecPath)
	if err != nil {
		return nil, err
	}
	if dims != sidecar.Dims || len(vectors) != len(sidecar.Entries) {
		return nil, fmt.Errorf("vector index corrupt: %s and %s disagree (dims %d/%d, count %d/%d)",
			vectorsFile, entriesFile, dims, sidecar.Dims, len(vectors), len(sidecar.Entries))
	}

	for i := range sidecar.Entries {
		sidecar.Entries[i].Vector = vectors[i]
	}

	return &Index{dims: sidecar.Dims, entries: sidecar.Entries}, nil
}

// CreateEmpty 在 dir 下创建空索引并立即持久化，使后续 Load 成功。
func CreateEmpty(dir string, dims int) (*Index, error) {
	if dims < 0 {
		dims = 0
	}
	idx := &Index{dims: dims}
	if err := idx.Save(dir); err != nil {
		return nil, fmt.Errorf("persist empty index: %w", err)
	}
	applog.Info("[Index] Created empty index", "dir", dir, "dims", dims)
	return idx, nil
}

// OpenOrCreate 组合助手：存在则加载，缺失则创建空索引。入库路径使用。
func OpenOrCreate(dir string, dims int) (*Index, error) {
	idx, err := Load(dir)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, ErrIndexNotFound) {
		return nil, err
	}
	return CreateEmpty(dir, dims)
}

// Len 返回条目数
func (x *Index) Len() int {
	return len(x.entries)
}

// Dims 返回向量维度；0 = 尚无条目且未固定维度
func (x *Index) Dims() int {
	return x.dims
}

// Add 追加条目，返回新分配的 id，顺序与输入一致。
// 任一条目维度不符则整批失败，索引不产生部分可见状态。
func (x *Index) Add(entries []Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	dims := x.dims
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("entry %d: empty vector", i)
		}
		if dims == 0 {
			dims = len(e.Vector)
		}
		if len(e.Vector) != dims {
			return nil, fmt.Errorf("%w: entry %d has %d, index has %d", ErrDimensionMismatch, i, len(e.Vector), dims)
		}
	}

	ids := make([]string, len(entries))
	added := make([]Entry, len(entries))
	for i, e := range entries {
		e.ID = uuid.New().String()
		ids[i] = e.ID
		added[i] = e
	}

	x.dims = dims
	x.entries = append(x.entries, added...)
	return ids, nil
}

// Search 余弦相似度近邻检索。k <= 0 返回 ErrInvalidTopK；
// k 超过条目数时收敛到条目数。
func (x *Index) Search(vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidTopK
	}
	if len(x.entries) == 0 {
		return nil, nil
	}
	if len(vector) != x.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), x.dims)
	}

	hits := make([]Hit, 0, len(x.entries))
	for _, e := range x.entries {
		hits = append(hits, Hit{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: e.Metadata,
			Score:    cosine(vector, e.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Save 将内存状态持久化到 dir 下的文件对。
// 先写临时文件再 rename，避免读者看到半写状态。
func (x *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := writeVectors(filepath.Join(dir, vectorsFile), x); err != nil {
		return err
	}
	if err := writeSidecar(filepath.Join(dir, entriesFile), x); err != nil {
		return err
	}
	return nil
}

// Remove 删除索引文件对（全量清空时使用）。文件不存在不算错误。
func Remove(dir string) error {
	for _, name := range []string{vectorsFile, entriesFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// ── 文件格式 ─────────────────────────────────────────────────

func readSidecar(path string) (*entriesSidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entriesFile, err)
	}
	var sc entriesSidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", entriesFile, err)
	}
	return &sc, nil
}

func writeSidecar(path string, x *Index) error {
	sc := entriesSidecar{
		Dims:    x.dims,
		Count:   len(x.entries),
		Entries: x.entries,
	}
	if sc.Entries == nil {
		sc.Entries = []Entry{}
	}
	data, err := json.Marshal(&sc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", entriesFile, err)
	}
	return atomicWrite(path, data)
}

// vectors.bin: magic | version | dims | count | count*dims float32 (little endian)
func readVectors(path string) ([][]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", vectorsFile, err)
	}
	if len(data) < 16 {
		return nil, 0, fmt.Errorf("%s truncated", vectorsFile)
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	version := binary.LittleEndian.Uint32(data[4:8])
	if magic != fileMagic || version != fileVersion {
		return nil, 0, fmt.Errorf("%s: unrecognized header (magic=%#x version=%d)", vectorsFile, magic, version)
	}
	dims := int(binary.LittleEndian.Uint32(data[8:12]))
	count := int(binary.LittleEndian.Uint32(data[12:16]))

	want := 16 + 4*dims*count
	if len(data) != want {
		return nil, 0, fmt.Errorf("%s: size %d, want %d (dims=%d count=%d)", vectorsFile, len(data), want, dims, count)
	}

	vectors := make([][]float32, count)
	off := 16
	for i := 0; i < count; i++ {
		vec := make([]float32, dims)
		for j := 0; j < dims; j++ {
			bits := binary.LittleEndian.Uint32(data[off : off+4])
			vec[j] = math.Float32frombits(bits)
			off += 4
		}
		vectors[i] = vec
	}
	return vectors, dims, nil
}

func writeVectors(path string, x *Index) error {
	buf := make([]byte, 16, 16+4*x.dims*len(x.entries))
	binary.LittleEndian.PutUint32(buf[0:4], fileMagic)
	binary.LittleEndian.PutUint32(buf[4:8], fileVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(x.dims))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(x.entries)))

	var scratch [4]byte
	for _, e := range x.entries {
		for _, v := range e.Vector {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
			buf = append(buf, scratch[:]...)
		}
	}
	return atomicWrite(path, buf)
}

// atomicWrite 临时文件 + rename
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
