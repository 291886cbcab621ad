package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpload_WritesFileAndReturnsURL(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root, "/files/")

	url, err := store.Upload(context.Background(), strings.NewReader("hello"), "chatFiles/conv-1/abc_notes.txt")

	require.NoError(t, err)
	require.Equal(t, "/files/chatFiles/conv-1/abc_notes.txt", url)

	data, err := os.ReadFile(filepath.Join(root, "chatFiles", "conv-1", "abc_notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestUpload_RejectsTraversal(t *testing.T) {
	store := NewFileStore(t.TempDir(), "/files")

	_, err := store.Upload(context.Background(), strings.NewReader("x"), "../../etc/passwd")

	require.ErrorIs(t, err, ErrUploadFailed)
}
