// Package metadata 维护与向量索引按 id 平行的分块元数据。
package metadata

import (
	"encoding/json"
	"fmt"

	"policyqa-go/internal/model"
)

// Store 是只追加的记录序列，按 id O(1) 查找。
type Store struct {
	records []model.EmbeddedRecord
	byID    map[int]int // id -> records 下标
	nextID  int
}

// NewStore 创建空的元数据存储。
func NewStore() *Store {
	return &Store{byID: make(map[int]int)}
}

// Len 返回记录数。
func (s *Store) Len() int { return len(s.records) }

// NextID 返回下一条记录将获得的 id。
func (s *Store) NextID() int { return s.nextID }

// Append 为每条记录分配下一个未使用的 id 后按序追加，返回带 id 的记录。
func (s *Store) Append(records []model.EmbeddedRecord) []model.EmbeddedRecord {
	out := make([]model.EmbeddedRecord, len(records))
	for n, r := range records {
		r.ID = s.nextID
		s.nextID++
		s.byID[r.ID] = len(s.records)
		s.records = append(s.records, r)
		out[n] = r
	}
	return out
}

// Get 按 id 查找记录。
func (s *Store) Get(id int) (model.EmbeddedRecord, bool) {
	pos, ok := s.byID[id]
	if !ok {
		return model.EmbeddedRecord{}, false
	}
	return s.records[pos], true
}

// Records 返回全部记录的拷贝。
func (s *Store) Records() []model.EmbeddedRecord {
	return append([]model.EmbeddedRecord(nil), s.records...)
}

// MarshalJSON 输出带缩进的记录数组。
func (s *Store) MarshalJSON() ([]byte, error) {
	records := s.records
	if records == nil {
		records = []model.EmbeddedRecord{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// UnmarshalJSON 读取记录数组，重建 id 索引并把 nextID 设为 max(id)+1。
func (s *Store) UnmarshalJSON(data []byte) error {
	var records []model.EmbeddedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	byID := make(map[int]int, len(records))
	nextID := 0
	for pos, r := range records {
		if r.ID < 0 {
			return fmt.Errorf("metadata: negative id %d", r.ID)
		}
		if _, dup := byID[r.ID]; dup {
			return fmt.Errorf("metadata: duplicate id %d", r.ID)
		}
		byID[r.ID] = pos
		if r.ID+1 > nextID {
			nextID = r.ID + 1
		}
	}
	s.records = records
	s.byID = byID
	s.nextID = nextID
	return nil
}
