// internal/database/db_test.go
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProject = "6f1c2b9e-3c4d-4e5f-8a9b-0c1d2e3f4a5b"

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabase_Open(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath, WithCompressionLevel(9))
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestDatabase_Messages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.CreateMessage(ctx, &Message{ProjectID: testProject, Sender: "alice", Body: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())

	second, err := db.CreateMessage(ctx, &Message{
		ProjectID: testProject,
		Sender:    "AI",
		Body:      "Processing...",
		Timestamp: first.Timestamp.Add(time.Second),
	})
	require.NoError(t, err)

	require.NoError(t, db.UpdateMessageBody(ctx, second.ID, "done"))

	got, err := db.GetMessage(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.Body)
	assert.True(t, got.Timestamp.Equal(second.Timestamp), "update must not move the timestamp")

	list, err := db.ListMessages(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = db.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdateMessageBody(ctx, "missing", "x"), ErrNotFound)
}

func TestDatabase_AppendFileVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	next, err := db.NextFileVersion(ctx, testProject, "src/app.js")
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	v1, err := db.AppendFileVersion(ctx, &FileVersion{
		ProjectID: testProject,
		FilePath:  "src/app.js",
		Content:   "console.log(1)",
		Version:   42,
		MessageID: "m1",
		Metadata:  map[string]any{"operation": "create/modify"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version, "caller supplied version is ignored")
	assert.Equal(t, "app.js", v1.FileName)
	assert.NotEmpty(t, v1.ID)

	v2, err := db.AppendFileVersion(ctx, &FileVersion{
		ProjectID: testProject,
		FilePath:  "src/app.js",
		Content:   "should be dropped",
		IsDeleted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Empty(t, v2.Content)

	v3, err := db.AppendFileVersion(ctx, &FileVersion{ProjectID: testProject, FilePath: "src/app.js", Content: "back"})
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version, "recreation continues the sequence")

	other, err := db.AppendFileVersion(ctx, &FileVersion{ProjectID: "other", FilePath: "src/app.js", Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Version, "versions are per project")

	got, err := db.GetFileVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", got.Content)
	assert.Equal(t, "m1", got.MessageID)
	assert.Equal(t, "create/modify", got.Metadata["operation"])
	assert.True(t, got.Timestamp.Equal(v1.Timestamp))
}

func TestDatabase_AppendFileVersion_Concurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	versions := make(chan int, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fv, err := db.AppendFileVersion(ctx, &FileVersion{
				ProjectID: testProject,
				FilePath:  "index.html",
				Content:   fmt.Sprintf("rev %d", i),
			})
			if assert.NoError(t, err) {
				versions <- fv.Version
			}
		}(i)
	}
	wg.Wait()
	close(versions)

	seen := map[int]bool{}
	for v := range versions {
		assert.False(t, seen[v], "duplicate version %d", v)
		seen[v] = true
	}
	for v := 1; v <= writers; v++ {
		assert.True(t, seen[v], "missing version %d", v)
	}
}

func TestDatabase_LatestFileVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.LatestFileVersion(ctx, testProject, "a.txt", false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.AppendFileVersion(ctx, &FileVersion{ProjectID: testProject, FilePath: "a.txt", Content: "one"})
	require.NoError(t, err)
	_, err = db.AppendFileVersion(ctx, &FileVersion{ProjectID: testProject, FilePath: "a.txt", IsDeleted: true})
	require.NoError(t, err)

	_, err = db.LatestFileVersion(ctx, testProject, "a.txt", false)
	assert.ErrorIs(t, err, ErrNotFound, "a deleted latest revision hides older content")

	latest, err := db.LatestFileVersion(ctx, testProject, "a.txt", true)
	require.NoError(t, err)
	assert.True(t, latest.IsDeleted)
	assert.Equal(t, 2, latest.Version)
}

func TestDatabase_LatestFileVersionBefore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, content := range []string{"v1", "v2", "v3"} {
		_, err := db.AppendFileVersion(ctx, &FileVersion{
			ProjectID: testProject,
			FilePath:  "a.txt",
			Content:   content,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	fv, err := db.LatestFileVersionBefore(ctx, testProject, "a.txt", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "v2", fv.Content, "cutoff is inclusive")

	fv, err = db.LatestFileVersionBefore(ctx, testProject, "a.txt", base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, fv.Version)

	_, err = db.LatestFileVersionBefore(ctx, testProject, "a.txt", base.Add(-time.Second))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatabase_FileVersionQueries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	write := func(path, content, msg string, deleted bool) {
		t.Helper()
		_, err := db.AppendFileVersion(ctx, &FileVersion{
			ProjectID: testProject, FilePath: path, Content: content, MessageID: msg, IsDeleted: deleted,
		})
		require.NoError(t, err)
	}
	write("b.txt", "b1", "m1", false)
	write("a.txt", "a1", "m1", false)
	write("a.txt", "a2", "m2", false)
	write("c.txt", "", "m2", true)

	paths, err := db.FilePaths(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, paths)

	byMsg, err := db.FileVersionsByMessage(ctx, "m2")
	require.NoError(t, err)
	require.Len(t, byMsg, 2)
	assert.Equal(t, "a.txt", byMsg[0].FilePath)
	assert.Equal(t, "c.txt", byMsg[1].FilePath)

	history, err := db.FileVersionHistory(ctx, testProject, "a.txt")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, 1, history[1].Version)

	all, err := db.ProjectFileVersions(ctx, testProject)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	latest, err := db.LatestFileVersions(ctx, testProject, false)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "a2", latest[0].Content)
	assert.Equal(t, "b1", latest[1].Content)

	withDeleted, err := db.LatestFileVersions(ctx, testProject, true)
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)
}

func TestDatabase_ProjectVersions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.LatestProjectVersion(ctx, testProject)
	assert.ErrorIs(t, err, ErrNotFound)

	tree := map[string]SnapshotFile{
		"index.html": {Content: "<html></html>", Version: 1, VersionID: "fv1", LastModified: time.Now().UTC(), FromMessage: "m1"},
		"app.js":     {Content: "x", Version: 3, VersionID: "fv2"},
	}
	pv1, err := db.CreateProjectVersion(ctx, &ProjectVersion{
		ProjectID:   testProject,
		Version:     99,
		Description: "first",
		FileTree:    tree,
		FilesCount:  7,
		MessageID:   "m1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pv1.Version)
	assert.Equal(t, 2, pv1.FilesCount, "files count follows the tree")

	pv2, err := db.CreateProjectVersion(ctx, &ProjectVersion{ProjectID: testProject, Description: "second", FileTree: map[string]SnapshotFile{}})
	require.NoError(t, err)
	assert.Equal(t, 2, pv2.Version)

	latest, err := db.LatestProjectVersion(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, pv2.ID, latest.ID)
	assert.Empty(t, latest.FileTree)

	got, err := db.GetProjectVersion(ctx, testProject, pv1.ID)
	require.NoError(t, err)
	require.Len(t, got.FileTree, 2)
	assert.Equal(t, "<html></html>", got.FileTree["index.html"].Content)
	assert.Equal(t, "m1", got.FileTree["index.html"].FromMessage)
	assert.Equal(t, 3, got.FileTree["app.js"].Version)

	_, err = db.GetProjectVersion(ctx, "another-project", pv1.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	byNumber, err := db.GetProjectVersionByNumber(ctx, testProject, 1)
	require.NoError(t, err)
	assert.Equal(t, pv1.ID, byNumber.ID)

	list, err := db.ListProjectVersions(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Version)
	assert.Nil(t, list[0].FileTree, "listing omits trees")
	assert.Equal(t, 2, list[1].FilesCount)
}
