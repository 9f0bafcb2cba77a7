package utils

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestListDirAndSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp4"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpeg"), make([]byte, 5), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	names, err := ListDir(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a.jpeg", "b.mp4", "sub"}, names)

	size, err := DirSize(dir)
	require.NoError(t, err)
	require.EqualValues(t, 15, size)

	_, err = ListDir(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestPadEven(t *testing.T) {
	require.Equal(t, 4, Even(3))
	require.Equal(t, 4, Even(4))

	img := gocv.NewMatWithSize(5, 7, gocv.MatTypeCV8UC3)
	defer img.Close()

	padded := PadEven(img, color.RGBA{})
	defer padded.Close()
	require.Equal(t, 6, padded.Rows())
	require.Equal(t, 8, padded.Cols())

	even := gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC3)
	defer even.Close()
	same := PadEven(even, color.RGBA{})
	defer same.Close()
	require.Equal(t, 4, same.Rows())
	require.Equal(t, 6, same.Cols())
}
