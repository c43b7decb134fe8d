// Package vectorstore 管理单个用户命名空间的索引与元数据。
//
// 远端对象存储是唯一可信来源，本地目录只是缓存：每次 Load 都会先丢弃本地缓存，
// 再从远端拉取快照重建；Save 先写本地缓存，再覆盖远端快照。
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"policyqa-go/internal/config"
	"policyqa-go/internal/metadata"
	"policyqa-go/internal/model"
	"policyqa-go/internal/vectorindex"
	"policyqa-go/pkg/log"
	"policyqa-go/pkg/storage"

	"golang.org/x/sync/errgroup"
)

// 远端快照中的两个对象名。
const (
	IndexBlob    = "index.flat"
	MetadataBlob = "metadata.json"
)

// State 是命名空间的加载状态。
type State int

const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "unloaded"
}

// ErrNotLoaded 表示在 Unloaded 状态下访问了索引。
var ErrNotLoaded = errors.New("vectorstore: namespace not loaded")

// Store 只服务于一个用户，不能跨用户复用。
type Store struct {
	userID    string
	namespace string
	cacheDir  string
	dim       int
	blobs     storage.BlobStore

	state State
	index *vectorindex.Index
	meta  *metadata.Store
}

// New 创建处于 Unloaded 状态的 Store。
func New(userID string, blobs storage.BlobStore, cfg config.RetrievalConfig) (*Store, error) {
	ns, err := storage.Namespace(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnsupportedInput, err)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", model.ErrConfigurationInvalid)
	}
	cacheDir := filepath.Join(cfg.DataDir, ns)
	if !within(cfg.DataDir, cacheDir) {
		return nil, fmt.Errorf("%w: cache dir %s escapes %s", model.ErrUnsupportedInput, cacheDir, cfg.DataDir)
	}
	return &Store{
		userID:    userID,
		namespace: ns,
		cacheDir:  cacheDir,
		dim:       cfg.Dimensions,
		blobs:     blobs,
		state:     StateUnloaded,
	}, nil
}

// State 返回当前状态。
func (s *Store) State() State { return s.state }

// Namespace 返回远端命名空间前缀。
func (s *Store) Namespace() string { return s.namespace }

// Len 返回已加载的记录数。
func (s *Store) Len() int {
	if s.state != StateLoaded {
		return 0
	}
	return s.index.Len()
}

// Records 返回已加载的元数据记录。
func (s *Store) Records() []model.EmbeddedRecord {
	if s.state != StateLoaded {
		return nil
	}
	return s.meta.Records()
}

// Load 从远端拉取快照并重建索引。远端缺少任一对象时返回 model.ErrNamespaceNotFound，
// 此时绝不回退到本地缓存。
func (s *Store) Load(ctx context.Context) error {
	if err := s.resetCache(); err != nil {
		return err
	}

	var indexData, metaData []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		indexData, err = s.blobs.Download(gctx, s.namespace, IndexBlob)
		return err
	})
	g.Go(func() error {
		var err error
		metaData, err = s.blobs.Download(gctx, s.namespace, MetadataBlob)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Infof("[VectorStore] 命名空间 %s 在远端没有快照", s.namespace)
			return fmt.Errorf("%s: %w", s.namespace, model.ErrNamespaceNotFound)
		}
		log.Errorf("[VectorStore] 拉取远端快照失败, namespace: %s, err: %v", s.namespace, err)
		return fmt.Errorf("%w: %v", model.ErrRemoteStoreUnavailable, err)
	}

	// 先落到本地缓存，再从缓存文件反序列化
	if err := s.writeCache(indexData, metaData); err != nil {
		return err
	}
	index, meta, err := s.readCache()
	if err != nil {
		return err
	}

	s.index, s.meta, s.state = index, meta, StateLoaded
	log.Infof("[VectorStore] 命名空间 %s 加载完成, 记录数: %d", s.namespace, index.Len())
	return nil
}

// Open 用于入库：远端已有快照则加载，否则以空索引进入 Loaded 状态。
func (s *Store) Open(ctx context.Context) error {
	err := s.Load(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrNamespaceNotFound) {
		return err
	}
	s.index = vectorindex.New(s.dim)
	s.meta = metadata.NewStore()
	s.state = StateLoaded
	log.Infof("[VectorStore] 命名空间 %s 首次创建", s.namespace)
	return nil
}

// Add 追加已归一化的向量及其记录，返回分配了 id 的记录。
func (s *Store) Add(vectors [][]float32, records []model.EmbeddedRecord) ([]model.EmbeddedRecord, error) {
	if s.state != StateLoaded {
		return nil, ErrNotLoaded
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("vectorstore: %d vectors for %d records", len(vectors), len(records))
	}
	if s.meta.NextID() != s.index.Len() {
		return nil, fmt.Errorf("%w: next id %d, index size %d", model.ErrCorruptSnapshot, s.meta.NextID(), s.index.Len())
	}
	if err := s.index.Add(vectors); err != nil {
		return nil, err
	}
	return s.meta.Append(records), nil
}

// Search 检索最相近的 k 条记录，分数四舍五入到 4 位小数。
func (s *Store) Search(query []float32, k int) ([]model.Snippet, error) {
	if s.state != StateLoaded {
		return nil, ErrNotLoaded
	}
	hits, err := s.index.Search(query, k)
	if err != nil {
		return nil, err
	}
	snippets := make([]model.Snippet, 0, len(hits))
	for _, hit := range hits {
		if hit.Position == vectorindex.NoMatch {
			continue
		}
		record, ok := s.meta.Get(hit.Position)
		if !ok {
			log.Warnf("[VectorStore] 索引位置 %d 没有对应的元数据, namespace: %s", hit.Position, s.namespace)
			continue
		}
		snippets = append(snippets, model.Snippet{
			DocumentName: record.DocumentName,
			Page:         record.Page,
			Text:         record.Text,
			Score:        roundScore(hit.Score),
		})
	}
	return snippets, nil
}

// Save 写本地缓存并覆盖远端快照；索引为空时什么也不做。
func (s *Store) Save(ctx context.Context) error {
	if s.state != StateLoaded || s.index.Len() == 0 {
		return nil
	}

	indexData, err := s.index.MarshalBinary()
	if err != nil {
		return fmt.Errorf("序列化索引失败: %w", err)
	}
	metaData, err := s.meta.MarshalJSON()
	if err != nil {
		return fmt.Errorf("序列化元数据失败: %w", err)
	}
	if err := s.resetCache(); err != nil {
		return err
	}
	if err := s.writeCache(indexData, metaData); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.replace(gctx, IndexBlob, indexData) })
	g.Go(func() error { return s.replace(gctx, MetadataBlob, metaData) })
	if err := g.Wait(); err != nil {
		log.Errorf("[VectorStore] 上传快照失败, namespace: %s, err: %v", s.namespace, err)
		return fmt.Errorf("%w: %v", model.ErrRemoteStoreUnavailable, err)
	}
	log.Infof("[VectorStore] 快照已保存, namespace: %s, 记录数: %d", s.namespace, s.index.Len())
	return nil
}

// replace 先尽力删除旧对象（可能本来就不存在），再无条件写入。
func (s *Store) replace(ctx context.Context, name string, data []byte) error {
	if err := s.blobs.Delete(ctx, s.namespace, name); err != nil {
		log.Warnf("[VectorStore] 删除旧对象 %s/%s 失败（忽略）: %v", s.namespace, name, err)
	}
	return s.blobs.Upload(ctx, s.namespace, name, data)
}

func (s *Store) resetCache() error {
	// 只允许清理 DataDir 下属于该命名空间的目录
	if filepath.Base(s.cacheDir) != s.namespace {
		return fmt.Errorf("拒绝清理本地缓存目录 %s", s.cacheDir)
	}
	if err := os.RemoveAll(s.cacheDir); err != nil {
		return fmt.Errorf("清理本地缓存失败: %w", err)
	}
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return fmt.Errorf("创建本地缓存目录失败: %w", err)
	}
	return nil
}

func (s *Store) writeCache(indexData, metaData []byte) error {
	if err := os.WriteFile(filepath.Join(s.cacheDir, IndexBlob), indexData, 0o644); err != nil {
		return fmt.Errorf("写入本地索引缓存失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.cacheDir, MetadataBlob), metaData, 0o644); err != nil {
		return fmt.Errorf("写入本地元数据缓存失败: %w", err)
	}
	return nil
}

func (s *Store) readCache() (*vectorindex.Index, *metadata.Store, error) {
	indexData, err := os.ReadFile(filepath.Join(s.cacheDir, IndexBlob))
	if err != nil {
		return nil, nil, fmt.Errorf("读取本地索引缓存失败: %w", err)
	}
	metaData, err := os.ReadFile(filepath.Join(s.cacheDir, MetadataBlob))
	if err != nil {
		return nil, nil, fmt.Errorf("读取本地元数据缓存失败: %w", err)
	}

	index := vectorindex.New(s.dim)
	if err := index.UnmarshalBinary(indexData); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrCorruptSnapshot, err)
	}
	meta := metadata.NewStore()
	if err := json.Unmarshal(metaData, meta); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrCorruptSnapshot, err)
	}
	if index.Len() != meta.Len() {
		return nil, nil, fmt.Errorf("%w: %d vectors, %d records", model.ErrCorruptSnapshot, index.Len(), meta.Len())
	}
	if index.Dim() != s.dim {
		if index.Len() > 0 {
			return nil, nil, fmt.Errorf("%w: snapshot dim %d, configured dim %d", model.ErrDimensionMismatch, index.Dim(), s.dim)
		}
		index = vectorindex.New(s.dim)
	}
	for pos, r := range meta.Records() {
		if r.ID != pos {
			return nil, nil, fmt.Errorf("%w: record %d has id %d", model.ErrCorruptSnapshot, pos, r.ID)
		}
	}
	return index, meta, nil
}

// within 判断 dir 是否严格位于 root 之下。
func within(root, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(dir))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func roundScore(score float32) float64 {
	return math.Round(float64(score)*1e4) / 1e4
}
