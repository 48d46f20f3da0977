package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"library-loans/library"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogue = `id,title,author,date
1,Dune,Frank Herbert,2019-05-01
2,"Guards! Guards!",Terry Pratchett,2020-11-30
# withdrawn
1,Duplicate,Someone,2021-01-01
3,Bad Date,Someone,30/11/2020
4,Short row
`

func TestImportBooks(t *testing.T) {
	ctx := context.Background()
	cfg := library.Config{Server: library.ServerLocal, Schema: "import", DataDir: t.TempDir()}
	mgr, err := library.NewLibraryManager(ctx, cfg)
	require.NoError(t, err)
	defer mgr.Close()

	var out bytes.Buffer
	ok, failed, err := importBooks(ctx, mgr, strings.NewReader(catalogue), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, failed)
	assert.Contains(t, out.String(), "Importing: Dune by Frank Herbert... SUCCESS (ID: 1)")
	assert.Contains(t, out.String(), "ERROR - already registered")
	assert.Contains(t, out.String(), "ERROR - invalid input")

	require.NoError(t, mgr.InTransaction(ctx, func(tx *library.Transaction) error {
		books, err := mgr.BooksByAuthor(ctx, tx, "Terry Pratchett")
		if err != nil {
			return err
		}
		require.Len(t, books, 1)
		assert.Equal(t, "2020-11-30", library.FormatDate(books[0].AcquiredOn))
		return nil
	}))
}

func TestImportCommandFresh(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "books.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1,Emma,Jane Austen,2018-02-02\n"), 0o600))
	cfg := library.Config{Server: library.ServerLocal, Schema: "import", DataDir: dir}

	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		cmd := newCommand(cfg, &out)
		cmd.SetArgs([]string{"--fresh", csvPath})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "Successfully imported: 1 books", "run %d starts from an empty store", i)
	}
}

func TestRemoveLocalStore(t *testing.T) {
	dir := t.TempDir()
	cfg := library.Config{Server: "LOCAL", Schema: "import", DataDir: dir}
	require.NoError(t, os.WriteFile(cfg.LocalFile(), []byte("stale"), 0o600))

	var out bytes.Buffer
	require.NoError(t, removeLocalStore(cfg, &out))
	_, err := os.Stat(filepath.Join(dir, "import.db"))
	assert.True(t, os.IsNotExist(err))

	cfg.Server = library.ServerRemote
	assert.ErrorIs(t, removeLocalStore(cfg, &out), library.ErrInvalidArgument)
}
