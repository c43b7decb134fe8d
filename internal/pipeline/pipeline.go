// Package pipeline 定义了文档入库与检索的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"policyqa-go/internal/chunker"
	"policyqa-go/internal/config"
	"policyqa-go/internal/model"
	"policyqa-go/internal/vectorindex"
	"policyqa-go/internal/vectorstore"
	"policyqa-go/pkg/embedding"
	"policyqa-go/pkg/lock"
	"policyqa-go/pkg/log"
	"policyqa-go/pkg/storage"
)

// Extractor 把一个 PDF 转换为逐页文本。
type Extractor interface {
	ExtractPages(ctx context.Context, fileName string, data []byte) ([]model.Page, error)
}

// Inspector 在入库前校验文件确实是可解析的 PDF。
type Inspector interface {
	PageCount(data []byte) (int, error)
}

// Dependencies 是 Pipeline 需要的外部协作方，全部在进程启动时构造一次。
type Dependencies struct {
	Embedder  embedding.Client
	Extractor Extractor
	Inspector Inspector
	Blobs     storage.BlobStore
	// Locker 为空时使用进程内锁。
	Locker lock.Locker
}

// Document 是一个待入库的上传文件。
type Document struct {
	Name string
	Data []byte
}

// DocumentResult 记录单个文档的入库情况。
type DocumentResult struct {
	Name   string `json:"name"`
	Pages  int    `json:"pages"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// IngestResult 是一次入库的汇总。
type IngestResult struct {
	UserID    string           `json:"userId"`
	Chunks    int              `json:"chunks"`
	Total     int              `json:"total"` // 入库后命名空间内的记录总数
	Documents []DocumentResult `json:"documents"`
}

// Pipeline 串联 分页抽取 -> 切块 -> 向量化 -> 索引 -> 持久化。
type Pipeline struct {
	cfg     config.RetrievalConfig
	chunker *chunker.Chunker
	deps    Dependencies
}

// New 校验配置并创建 Pipeline。
func New(cfg config.RetrievalConfig, deps Dependencies) (*Pipeline, error) {
	c, err := chunker.New(cfg.WindowWords, cfg.OverlapWords)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.Dimensions <= 0:
		return nil, fmt.Errorf("%w: dimensions must be positive", model.ErrConfigurationInvalid)
	case cfg.TopK <= 0:
		return nil, fmt.Errorf("%w: top_k must be positive", model.ErrConfigurationInvalid)
	case cfg.PreviewChars <= 0:
		return nil, fmt.Errorf("%w: preview_chars must be positive", model.ErrConfigurationInvalid)
	case deps.Embedder == nil || deps.Extractor == nil || deps.Inspector == nil || deps.Blobs == nil:
		return nil, fmt.Errorf("%w: pipeline dependencies are incomplete", model.ErrConfigurationInvalid)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	return &Pipeline{cfg: cfg, chunker: c, deps: deps}, nil
}

// Config 返回检索配置。
func (p *Pipeline) Config() config.RetrievalConfig { return p.cfg }

// Validate 在任何处理开始前拒绝非 PDF 的输入。同一批次中归档名相同的文档会互相覆盖，也一并拒绝。
func (p *Pipeline) Validate(docs []Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: no documents", model.ErrUnsupportedInput)
	}
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if !strings.EqualFold(filepath.Ext(doc.Name), ".pdf") {
			return fmt.Errorf("%w: %q is not a pdf", model.ErrUnsupportedInput, doc.Name)
		}
		archived := storage.ArchiveName(doc.Name)
		if _, dup := seen[archived]; dup {
			return fmt.Errorf("%w: duplicate document name %q", model.ErrUnsupportedInput, doc.Name)
		}
		seen[archived] = struct{}{}
		if _, err := p.deps.Inspector.PageCount(doc.Data); err != nil {
			if errors.Is(err, model.ErrUnsupportedInput) {
				return fmt.Errorf("%q: %w", doc.Name, err)
			}
			return fmt.Errorf("%w: %q: %v", model.ErrUnsupportedInput, doc.Name, err)
		}
	}
	return nil
}

// Ingest 把一批文档追加到用户的命名空间，所有文档处理完后只保存一次。
// 单个文档抽取失败会被记录并跳过；全部文档都没有产生分块时返回 model.ErrEmptyCorpus 且不保存。
func (p *Pipeline) Ingest(ctx context.Context, userID string, docs []Document) (*IngestResult, error) {
	if err := p.Validate(docs); err != nil {
		log.Warnf("[Pipeline] 输入校验失败, UserID: %s, err: %v", userID, err)
		return nil, err
	}
	return p.IngestValidated(ctx, userID, docs)
}

// IngestValidated 与 Ingest 相同，但跳过 Validate，调用方必须已对同一批 docs 调用过 Validate。
func (p *Pipeline) IngestValidated(ctx context.Context, userID string, docs []Document) (*IngestResult, error) {
	log.Infof("[Pipeline] 开始入库, UserID: %s, 文档数: %d", userID, len(docs))
	store, err := vectorstore.New(userID, p.deps.Blobs, p.cfg)
	if err != nil {
		return nil, err
	}

	unlock, err := p.deps.Locker.Lock(ctx, store.Namespace())
	if err != nil {
		return nil, fmt.Errorf("获取命名空间锁失败: %w", err)
	}
	defer unlock()

	log.Infof("[Pipeline] 步骤1: 加载命名空间 %s", store.Namespace())
	if err := store.Open(ctx); err != nil {
		return nil, err
	}

	result := &IngestResult{UserID: userID}
	for _, doc := range docs {
		docResult, err := p.ingestDocument(ctx, store, doc)
		if err != nil {
			return nil, err
		}
		result.Documents = append(result.Documents, docResult)
		result.Chunks += docResult.Chunks
	}

	if result.Chunks == 0 {
		log.Warnf("[Pipeline] 所有文档都未产生分块, UserID: %s", userID)
		return nil, fmt.Errorf("%w: %d document(s) produced no extractable text", model.ErrEmptyCorpus, len(docs))
	}

	log.Infof("[Pipeline] 步骤5: 保存快照, 新增分块: %d", result.Chunks)
	if err := store.Save(ctx); err != nil {
		return nil, err
	}
	result.Total = store.Len()
	log.Infof("[Pipeline] 入库完成, UserID: %s, 新增分块: %d, 总记录数: %d", userID, result.Chunks, result.Total)
	return result, nil
}

// ingestDocument 处理单个文档。返回 error 表示整批入库必须中止（向量化失败、维度错误等）。
func (p *Pipeline) ingestDocument(ctx context.Context, store *vectorstore.Store, doc Document) (DocumentResult, error) {
	res := DocumentResult{Name: doc.Name}

	log.Infof("[Pipeline] 步骤2: 抽取分页文本, Document: %s", doc.Name)
	pages, err := p.deps.Extractor.ExtractPages(ctx, doc.Name, doc.Data)
	if err != nil {
		log.Errorf("[Pipeline] 抽取文本失败, 跳过该文档, Document: %s, err: %v", doc.Name, err)
		res.Error = err.Error()
		return res, nil
	}
	res.Pages = len(pages)

	chunks := p.chunker.Chunk(doc.Name, pages)
	log.Infof("[Pipeline] 步骤3: 文档 %s 共 %d 页, 生成 %d 个分块", doc.Name, len(pages), len(chunks))
	if len(chunks) == 0 {
		return res, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	log.Infof("[Pipeline] 步骤4: 向量化 %d 个分块", len(texts))
	vectors, err := p.deps.Embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return res, fmt.Errorf("文档 %s 向量化失败: %w", doc.Name, err)
	}
	if len(vectors) != len(chunks) {
		return res, fmt.Errorf("文档 %s 向量化返回 %d 个向量, 期望 %d", doc.Name, len(vectors), len(chunks))
	}

	records := make([]model.EmbeddedRecord, len(chunks))
	for i, c := range chunks {
		records[i] = model.EmbeddedRecord{
			DocumentName: c.DocumentName,
			Page:         c.Page,
			ChunkID:      c.ChunkID,
			Text:         c.Text,
			Preview:      model.Truncate(c.Text, p.cfg.PreviewChars),
		}
	}
	if _, err := store.Add(vectorindex.NormalizeAll(vectors), records); err != nil {
		return res, fmt.Errorf("文档 %s 写入索引失败: %w", doc.Name, err)
	}
	res.Chunks = len(chunks)
	return res, nil
}

// Query 检索与问题最相近的分块。topK <= 0 时使用配置的默认值。
func (p *Pipeline) Query(ctx context.Context, userID, question string, topK int) ([]model.Snippet, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", model.ErrUnsupportedInput)
	}
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	store, err := vectorstore.New(userID, p.deps.Blobs, p.cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	vectors, err := p.deps.Embedder.CreateEmbeddings(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("问题向量化失败: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("问题向量化返回 %d 个向量", len(vectors))
	}

	snippets, err := store.Search(vectorindex.Normalize(vectors[0]), topK)
	if err != nil {
		return nil, err
	}
	log.Infof("[Pipeline] 检索完成, UserID: %s, topK: %d, 命中: %d", userID, topK, len(snippets))
	return snippets, nil
}
