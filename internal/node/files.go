package node

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gigi-net/gigi-core/internal/downloader"
	"github.com/gigi-net/gigi-core/internal/proto/transfer"
	"github.com/gigi-net/gigi-core/internal/shareindex"
)

// ShareFile registers a local filesystem path in the share index,
// hashing it directly (§4.H).
func (n *Node) ShareFile(path string) (string, error) {
	code, err := n.shareIndex.ShareFile(shareindex.PathSource(path), filepath.Base(path), localPathHasher, time.Now())
	if err != nil {
		return "", err
	}
	n.metrics.SharesActive.WithLabelValues().Set(float64(len(n.shareIndex.ListSharedFiles())))
	n.enqueueEvent(Event{Kind: EventFileShared, ShareCode: code, Filename: filepath.Base(path)})
	return code, nil
}

// ShareContentURI registers an opaque platform content URI in the
// share index. size is supplied by the caller rather than stat'd,
// since direct filesystem access to platform URIs is not available
// (§6, §7's "Platform URIs" note); the content is instead hashed by
// reading it through the node's injected chunk reader.
func (n *Node) ShareContentURI(uri, name string, size int64) (string, error) {
	code, err := n.shareIndex.ShareFile(shareindex.URISource(uri), name, n.uriHasher(size), time.Now())
	if err != nil {
		return "", err
	}
	n.metrics.SharesActive.WithLabelValues().Set(float64(len(n.shareIndex.ListSharedFiles())))
	n.enqueueEvent(Event{Kind: EventFileShared, ShareCode: code, Filename: name})
	return code, nil
}

// UnshareFile revokes a previously shared file.
func (n *Node) UnshareFile(shareCode string) error {
	if err := n.shareIndex.UnshareFile(shareCode); err != nil {
		return err
	}
	n.metrics.SharesActive.WithLabelValues().Set(float64(len(n.shareIndex.ListSharedFiles())))
	n.enqueueEvent(Event{Kind: EventFileRevoked, ShareCode: shareCode})
	return nil
}

// ListSharedFiles returns every non-revoked entry in the share index.
func (n *Node) ListSharedFiles() []shareindex.ShareEntry {
	return n.shareIndex.ListSharedFiles()
}

// ListRemoteFiles requests nick's full share listing over a fresh
// transfer stream and emits FileListReceived (§4.I's ListFiles RPC,
// §6's event taxonomy).
func (n *Node) ListRemoteFiles(nick string) ([]transfer.FileDescriptor, error) {
	rec, ok := n.directory.GetByNickname(nick)
	if !ok {
		return nil, ErrPeerNotFound
	}
	files, err := n.requester.ListFiles(n.ctx, rec.PeerID)
	if err != nil {
		return nil, err
	}
	summaries := make([]FileSummary, 0, len(files))
	for _, f := range files {
		summaries = append(summaries, FileSummary{
			ShareCode:  f.ID,
			Name:       f.Name,
			Size:       f.Size,
			Hash:       f.Hash,
			ChunkCount: f.ChunkCount,
			CreatedAt:  f.CreatedAt,
		})
	}
	n.enqueueEvent(Event{Kind: EventFileListReceived, PeerID: rec.PeerID, Nickname: nick, Files: summaries})
	return files, nil
}

// GetRemoteFileInfo requests a single file descriptor from nick by
// share code and emits FileInfoReceived.
func (n *Node) GetRemoteFileInfo(nick, shareCode string) (*transfer.FileDescriptor, error) {
	rec, ok := n.directory.GetByNickname(nick)
	if !ok {
		return nil, ErrPeerNotFound
	}
	descriptor, err := n.requester.GetFileInfo(n.ctx, rec.PeerID, shareCode)
	if err != nil {
		return nil, err
	}
	if descriptor != nil {
		n.enqueueEvent(Event{
			Kind:      EventFileInfoReceived,
			PeerID:    rec.PeerID,
			Nickname:  nick,
			ShareCode: descriptor.ID,
			Filename:  descriptor.Name,
			FileSize:  descriptor.Size,
		})
	}
	return descriptor, nil
}

// DownloadFile resolves nick to a peer and starts a download of
// shareCode from it, returning the pending download id immediately
// (§4.J); progress is reported through the event stream.
func (n *Node) DownloadFile(nick, shareCode string) (string, error) {
	rec, ok := n.directory.GetByNickname(nick)
	if !ok {
		return "", ErrPeerNotFound
	}
	return n.downloads.Download(n.ctx, rec.PeerID, nick, shareCode), nil
}

// GetActiveDownloads returns every download not yet in a terminal state.
func (n *Node) GetActiveDownloads() []downloader.DownloadInfo { return n.downloads.GetActiveDownloads() }

// GetDownloadByShareCode looks up the most recent download for a share code.
func (n *Node) GetDownloadByShareCode(shareCode string) (downloader.DownloadInfo, bool) {
	return n.downloads.GetDownloadByShareCode(shareCode)
}

// GetDownloadsFromPeer returns every download initiated from peerNickname.
func (n *Node) GetDownloadsFromPeer(peerNickname string) []downloader.DownloadInfo {
	return n.downloads.GetDownloadsFromPeer(peerNickname)
}

// GetRecentDownloads returns the n most recently started downloads.
func (n *Node) GetRecentDownloads(limit int) []downloader.DownloadInfo {
	return n.downloads.GetRecentDownloads(limit)
}

// CleanupDownloads drops terminal downloads from memory and returns
// how many were removed.
func (n *Node) CleanupDownloads() int { return n.downloads.CleanupDownloads() }

// CancelDownload cancels an in-progress download by id.
func (n *Node) CancelDownload(downloadID string) bool { return n.downloads.Cancel(downloadID) }

func localPathHasher(ref shareindex.SourceRef) (string, int64, error) {
	f, err := os.Open(ref.Path)
	if err != nil {
		return "", 0, fmt.Errorf("node: open shared file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("node: hash shared file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// uriHasher builds a Hasher that reads a URI source through the node's
// chunk reader in transfer.ChunkSize increments, using the
// caller-supplied size rather than stat'ing the opaque URI.
func (n *Node) uriHasher(size int64) shareindex.Hasher {
	return func(ref shareindex.SourceRef) (string, int64, error) {
		read := n.getChunkReader()
		h := sha256.New()
		var offset int64
		for offset < size {
			remaining := size - offset
			chunkSize := int64(transfer.ChunkSize)
			if remaining < chunkSize {
				chunkSize = remaining
			}
			data, err := read(ref, offset, int(chunkSize))
			if err != nil {
				return "", 0, fmt.Errorf("node: read shared content uri: %w", err)
			}
			h.Write(data)
			offset += int64(len(data))
			if len(data) == 0 {
				break
			}
		}
		return hex.EncodeToString(h.Sum(nil)), offset, nil
	}
}
