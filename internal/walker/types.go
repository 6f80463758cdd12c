package walker

import (
	"os"
	"syscall"

	"github.com/kpagano/fclones/internal/types"
)

// newFileInfo creates a types.FileInfo from a stat'd os.FileInfo and its
// interned path.
func newFileInfo(path *types.Path, info os.FileInfo) *types.FileInfo {
	stat := info.Sys().(*syscall.Stat_t)
	return &types.FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Dev:     uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:     stat.Ino,
		Nlink:   uint32(stat.Nlink),
	}
}

// dirIdentity extracts the (device, inode) pair for a directory, used to
// break symlink cycles when symlink-following is enabled.
func dirIdentity(info os.FileInfo) types.DevIno {
	stat := info.Sys().(*syscall.Stat_t)
	return types.DevIno{Dev: uint64(stat.Dev), Ino: stat.Ino} //nolint:unconvert
}
