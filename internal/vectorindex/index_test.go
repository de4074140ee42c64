package vectorindex_test

import (
	"errors"
	"testing"

	"panrag/internal/vectorindex"
)

func vec(vals ...float32) []float32 { return vals }

// TestLoadMissing 文件对缺失时 Load 返回 ErrIndexNotFound
func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := vectorindex.Load(dir)
	if !errors.Is(err, vectorindex.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

// TestCreateEmptyThenLoad 空索引持久化后可被 Load 打开
func TestCreateEmptyThenLoad(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorindex.CreateEmpty(dir, 3)
	if err != nil {
		t.Fatalf("CreateEmpty failed: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d entries", idx.Len())
	}

	loaded, err := vectorindex.Load(dir)
	if err != nil {
		t.Fatalf("Load after CreateEmpty failed: %v", err)
	}
	if loaded.Len() != 0 || loaded.Dims() != 3 {
		t.Errorf("unexpected loaded state: len=%d dims=%d", loaded.Len(), loaded.Dims())
	}
}

// TestOpenOrCreateIdempotent 重复 OpenOrCreate 不破坏已有索引
func TestOpenOrCreateIdempotent(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorindex.OpenOrCreate(dir, 3)
	if err != nil {
		t.Fatalf("first OpenOrCreate failed: %v", err)
	}

	// 空索引上重复打开不改变条目数也不破坏文件
	reopened, err := vectorindex.OpenOrCreate(dir, 3)
	if err != nil {
		t.Fatalf("reopen of empty index failed: %v", err)
	}
	if reopened.Len() != 0 || reopened.Dims() != 3 {
		t.Errorf("empty index changed on reopen: len=%d dims=%d", reopened.Len(), reopened.Dims())
	}

	if _, err := idx.Add([]vectorindex.Entry{{Text: "a", Vector: vec(1, 0, 0)}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again, err := vectorindex.OpenOrCreate(dir, 3)
	if err != nil {
		t.Fatalf("second OpenOrCreate failed: %v", err)
	}
	if again.Len() != 1 {
		t.Errorf("expected 1 entry after reopen, got %d", again.Len())
	}
}

// TestSaveLoadRoundTrip 持久化往返后检索结果一致
func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorindex.OpenOrCreate(dir, 0)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}

	entries := []vectorindex.Entry{
		{Text: "north", Metadata: map[string]string{"document_id": "d1"}, Vector: vec(0, 1, 0)},
		{Text: "east", Metadata: map[string]string{"document_id": "d1"}, Vector: vec(1, 0, 0)},
		{Text: "northeast", Metadata: map[string]string{"document_id": "d2"}, Vector: vec(0.7, 0.7, 0)},
	}
	ids, err := idx.Add(entries)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	query := vec(1, 0, 0)

	before, err := idx.Search(query, 3)
	if err != nil {
		t.Fatalf("Search before reload failed: %v", err)
	}

	loaded, err := vectorindex.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	after, err := loaded.Search(query, 3)
	if err != nil {
		t.Fatalf("Search after reload failed: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("result count changed across reload: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Text != after[i].Text {
			t.Errorf("result %d changed across reload: %+v vs %+v", i, before[i], after[i])
		}
		if diff := before[i].Score - after[i].Score; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("result %d score drifted: %f vs %f", i, before[i].Score, after[i].Score)
		}
	}

	if after[0].Text != "east" {
		t.Errorf("expected 'east' as best match, got %q", after[0].Text)
	}
	if after[0].Metadata["document_id"] != "d1" {
		t.Errorf("metadata lost across reload: %+v", after[0].Metadata)
	}
}

// TestSearchOrdering 结果按相似度降序
func TestSearchOrdering(t *testing.T) {
	idx, err := vectorindex.CreateEmpty(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("CreateEmpty failed: %v", err)
	}
	_, err = idx.Add([]vectorindex.Entry{
		{Text: "far", Vector: vec(0, 1)},
		{Text: "near", Vector: vec(1, 0.1)},
		{Text: "mid", Vector: vec(1, 1)},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	hits, err := idx.Search(vec(1, 0), 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("results not in descending score order at %d", i)
		}
	}
	if hits[0].Text != "near" {
		t.Errorf("expected 'near' first, got %q", hits[0].Text)
	}
}

// TestSearchKClamp k 超过条目数时收敛
func TestSearchKClamp(t *testing.T) {
	idx, err := vectorindex.CreateEmpty(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("CreateEmpty failed: %v", err)
	}
	_, err = idx.Add([]vectorindex.Entry{
		{Text: "a", Vector: vec(1, 0)},
		{Text: "b", Vector: vec(0, 1)},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	hits, err := idx.Search(vec(1, 0), 100)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(hits))
	}
}

// TestSearchInvalidTopK k <= 0 报错
func TestSearchInvalidTopK(t *testing.T) {
	idx, err := vectorindex.CreateEmpty(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("CreateEmpty failed: %v", err)
	}
	for _, k := range []int{0, -1} {
		if _, err := idx.Search(vec(1, 0), k); !errors.Is(err, vectorindex.ErrInvalidTopK) {
			t.Errorf("Search(k=%d): expected ErrInvalidTopK, got %v", k, err)
		}
	}
}

// TestSearchEmptyIndex 空索引检索返回空结果不报错
func TestSearchEmptyIndex(t *testing.T) {
	idx, err := vectorindex.CreateEmpty(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("CreateEmpty failed: %v", err)
	}
	hits, err := idx.Search(vec(1, 0), 5)
	if err != nil {
		t.Fatalf("Search on empty index failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

// TestAddDimensionMismatch 维度不符整批拒绝
func TestAddDimensionMismatch(t *testing.T) {
	idx, err := vectorindex.CreateEmpty(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("CreateEmpty failed: %v", err)
	}
	if _, err := idx.Add([]vectorindex.Entry{{Text: "a", Vector: vec(1, 0, 0)}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	_, err = idx.Add([]vectorindex.Entry{
		{Text: "ok", Vector: vec(0, 1, 0)},
		{Text: "bad", Vector: vec(1, 0)},
	})
	if !errors.Is(err, vectorindex.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("failed batch must not be partially applied, len=%d", idx.Len())
	}
}

// TestRemove 删除文件对后 Load 再次返回 ErrIndexNotFound
func TestRemove(t *testing.T) {
	dir := t.TempDir()
	if _, err := vectorindex.CreateEmpty(dir, 2); err != nil {
		t.Fatalf("CreateEmpty failed: %v", err)
	}
	if err := vectorindex.Remove(dir); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := vectorindex.Load(dir); !errors.Is(err, vectorindex.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound after Remove, got %v", err)
	}
	// 再次 Remove 不报错
	if err := vectorindex.Remove(dir); err != nil {
		t.Errorf("Remove on missing files failed: %v", err)
	}
}
