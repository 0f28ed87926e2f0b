package minioctrl_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/src/storage/minioctrl"
)

func TestGetBucketAndObjectFromURL(t *testing.T) {
	tests := []struct {
		url        string
		wantBucket string
		wantObject string
	}{
		{url: "uploads/abc.pdf", wantBucket: "uploads", wantObject: "abc.pdf"},
		{url: "uploads/nested/abc.pdf", wantBucket: "uploads", wantObject: "nested/abc.pdf"},
		{url: "uploads", wantBucket: "", wantObject: ""},
		{url: "/abc.pdf", wantBucket: "", wantObject: ""},
		{url: "uploads/", wantBucket: "", wantObject: ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			bucket, object := minioctrl.GetBucketAndObjectFromURL(tt.url)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantObject, object)
		})
	}
}

func TestNewObjectName(t *testing.T) {
	name := minioctrl.NewObjectName("Report.PDF")
	require.True(t, strings.HasSuffix(name, ".pdf"))

	_, err := uuid.Parse(strings.TrimSuffix(name, ".pdf"))
	assert.NoError(t, err)
	assert.NotEqual(t, name, minioctrl.NewObjectName("Report.PDF"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", minioctrl.ContentType("a.pdf"))
	assert.Equal(t, "application/octet-stream", minioctrl.ContentType("a.unknownext"))
}
