package model

// Page 是 PDF 抽取得到的一页文本，Number 从 1 开始。
type Page struct {
	Number int
	Text   string
}

// Chunk 是某一页上的一个连续词窗口。
type Chunk struct {
	DocumentName string
	Page         int
	ChunkID      int // 页内序号，从 0 开始
	Text         string
}

// EmbeddedRecord 是元数据文件中的一条记录，ID 与向量在索引中的位置一致。
type EmbeddedRecord struct {
	ID           int    `json:"id"`
	DocumentName string `json:"document_name"`
	Page         int    `json:"page"`
	ChunkID      int    `json:"chunk_id"`
	Text         string `json:"text"`
	Preview      string `json:"preview"`
}

// Snippet 是一次检索命中的上下文片段，交给答案生成方使用。
type Snippet struct {
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}

// Source 是答案中展示的引用来源。
type Source struct {
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page"`
	Score        float64 `json:"score"`
	Preview      string  `json:"preview"`
}

// Answer 是问答接口的返回结构。
type Answer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
}

// Truncate 按字符（rune）截取前 n 个字符。
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
