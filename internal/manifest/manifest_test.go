package manifest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/memdl/internal/domain"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

const sampleJSON = `{"Saved Media": [
  {"Date": "2020-01-01 10:00:00 UTC", "Media Type": "Image", "Download Link": "https://example.test/dl?id=1"},
  {"Date": "2020-01-02 11:30:00 UTC", "Media Type": "Video", "Download Link": "https://example.test/dl?id=2"},
  {"Date": "2020-01-03 12:00:00 UTC", "Media Type": "Sticker", "Download Link": "https://example.test/dl?id=3"}
]}`

func TestLoad_JSON(t *testing.T) {
	p := writeZip(t, map[string]string{EntryJSON: sampleJSON})

	recs, err := Load(p)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "2020-01-01 10:00:00 UTC", recs[0].CapturedAt)
	assert.Equal(t, domain.KindImage, recs[0].Kind)
	assert.Equal(t, "https://example.test/dl?id=1", recs[0].Link)
	assert.Equal(t, domain.KindVideo, recs[1].Kind)
	assert.Equal(t, domain.KindUnknown, recs[2].Kind)
	assert.Equal(t, "Sticker", recs[2].RawKind)
}

func TestLoad_EmptySavedMedia(t *testing.T) {
	p := writeZip(t, map[string]string{EntryJSON: `{"Saved Media": []}`})

	recs, err := Load(p)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLoad_HTMLFallback(t *testing.T) {
	html := `<html><body><table>
<tr><th>Date</th><th>Media Type</th><th></th></tr>
<tr><td>2021-05-06 07:08:09 UTC</td><td>Image</td><td><a href="#" onclick="downloadMemories('https://example.test/dl?a=1&amp;b=2', this, true); return false;">Download</a></td></tr>
<tr><td>2021-05-07 07:08:09 UTC</td><td>Video</td><td><a href="https://example.test/direct/2">Download</a></td></tr>
</table></body></html>`
	p := writeZip(t, map[string]string{EntryHTML: html})

	recs, err := Load(p)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://example.test/dl?a=1&b=2", recs[0].Link)
	assert.Equal(t, domain.KindImage, recs[0].Kind)
	assert.Equal(t, "https://example.test/direct/2", recs[1].Link)
	assert.Equal(t, domain.KindVideo, recs[1].Kind)
}

func TestParseHTML_ExtraColumnBeforeLink(t *testing.T) {
	html := `<table>
<tr><th>Date</th><th>Media Type</th><th>Location</th><th></th></tr>
<tr><td>2021-05-06 07:08:09 UTC</td><td>Image</td><td><a href="https://maps.example.test/?q=1,2">1, 2</a></td><td><a href="#" onclick="downloadMemories('https://example.test/dl/1', this, true)">Download</a></td></tr>
<tr><td>2021-05-07 07:08:09 UTC</td><td>Video</td><td></td><td><a href="#" onclick="downloadMemories('https://example.test/dl/2', this, true)">Download</a></td></tr>
</table>`

	recs, err := ParseHTML([]byte(html))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://example.test/dl/1", recs[0].Link, "downloadMemories 优先于其它列的 href")
	assert.Equal(t, "https://example.test/dl/2", recs[1].Link)
	assert.Equal(t, domain.KindVideo, recs[1].Kind)
}

func TestLoad_JSONPreferredOverHTML(t *testing.T) {
	p := writeZip(t, map[string]string{
		EntryJSON: sampleJSON,
		EntryHTML: `<table><tr><td>x</td><td>Image</td><td><a href="https://h/1">d</a></td></tr></table>`,
	})
	recs, err := Load(p)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.zip"))
	assert.Equal(t, domain.ErrCodeIOFailed, Code(err))
	assert.Contains(t, err.Error(), "不存在")

	notZip := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("not a zip"), 0o644))
	_, err = Load(notZip)
	assert.Equal(t, domain.ErrCodeManifestInvalid, Code(err))

	noEntry := writeZip(t, map[string]string{"other.txt": "x"})
	_, err = Load(noEntry)
	assert.Equal(t, domain.ErrCodeManifestInvalid, Code(err))
	assert.Contains(t, err.Error(), EntryJSON)

	badJSON := writeZip(t, map[string]string{EntryJSON: `{"Saved Media": [`})
	_, err = Load(badJSON)
	assert.Equal(t, domain.ErrCodeManifestInvalid, Code(err))

	noKey := writeZip(t, map[string]string{EntryJSON: `{"Other": []}`})
	_, err = Load(noKey)
	assert.Equal(t, domain.ErrCodeManifestInvalid, Code(err))
}

func TestParseJSON_ValidationNamesIndex(t *testing.T) {
	_, err := ParseJSON([]byte(`{"Saved Media": [
	  {"Date": "2020-01-01 10:00:00 UTC", "Media Type": "Image", "Download Link": "https://x/1"},
	  {"Date": "2020-01-01 10:00:00 UTC", "Media Type": "Image", "Download Link": ""}
	]}`))
	require.Error(t, err)

	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 1, me.Index)
	assert.Equal(t, domain.ErrCodeManifestInvalid, me.Code)
	assert.Contains(t, err.Error(), "Download Link")
}
