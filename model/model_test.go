package model

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMediaType(t *testing.T) {
	tests := []struct {
		mediaType string
		want      ItemClass
	}{
		{"", ClassMail},
		{"text/plain", ClassMail},
		{"Multipart/Alternative", ClassMail},
		{"message/rfc822", ClassMail},
		{"text/calendar", ClassMeetingRequest},
		{"text/x-vcard", ClassContact},
		{"multipart/report", ClassReport},
		{"x-custom/thing", ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMediaType(tt.mediaType))
		})
	}
}

func TestWriteExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.msg")

	require.NoError(t, WriteExclusive(path, []byte("one")))
	assert.Error(t, WriteExclusive(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestCopyExclusive_RemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.msg")

	err := CopyExclusive(path, io.MultiReader(strings.NewReader("head"), failingReader{}))
	assert.ErrorContains(t, err, "disk gone")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
