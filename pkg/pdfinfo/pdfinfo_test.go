package pdfinfo

import (
	"testing"

	"policyqa-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestPageCount_RejectsEmpty(t *testing.T) {
	_, err := NewInspector().PageCount(nil)
	assert.ErrorIs(t, err, model.ErrUnsupportedInput)
}

func TestPageCount_RejectsGarbage(t *testing.T) {
	_, err := NewInspector().PageCount([]byte("this is a plain text file, not a pdf"))
	assert.ErrorIs(t, err, model.ErrUnsupportedInput)
}

func TestPageCount_RejectsTruncatedHeader(t *testing.T) {
	_, err := NewInspector().PageCount([]byte("%PDF-1.7\n"))
	assert.ErrorIs(t, err, model.ErrUnsupportedInput)
}
