// Package downloader implements the sliding-window pull-based file
// downloader (§4.J): it drives GetFileInfo/GetChunk requests through
// an injected Requester, verifies per-chunk and whole-file integrity,
// and assembles output via write-to-temp-then-rename.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/gigi-net/gigi-core/internal/proto/transfer"
)

// DefaultWindow and MaxWindow bound the number of concurrently
// outstanding GetChunk requests per download.
const (
	DefaultWindow = 5
	MaxWindow     = 10
)

// Requester performs the two transfer-protocol RPCs a download needs.
// The unified node implements this by opening a "/file/1.0.0" stream
// per call; tests supply an in-memory fake.
type Requester interface {
	GetFileInfo(ctx context.Context, peerID, shareCode string) (*transfer.FileDescriptor, error)
	GetChunk(ctx context.Context, peerID, shareCode string, chunkIndex int) (*transfer.ChunkPayload, error)
}

// Status is a download's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind enumerates the download events the unified node forwards
// to the application (§6's event taxonomy).
type EventKind int

const (
	FileDownloadStarted EventKind = iota
	FileDownloadProgress
	FileDownloadCompleted
	FileDownloadFailed
)

func (k EventKind) String() string {
	switch k {
	case FileDownloadStarted:
		return "FileDownloadStarted"
	case FileDownloadProgress:
		return "FileDownloadProgress"
	case FileDownloadCompleted:
		return "FileDownloadCompleted"
	case FileDownloadFailed:
		return "FileDownloadFailed"
	default:
		return "Unknown"
	}
}

// Event is published on Manager.Events for every state transition.
type Event struct {
	Kind             EventKind
	DownloadID       string
	ShareCode        string
	FromPeer         string
	FromNickname     string
	Filename         string
	DownloadedChunks int
	TotalChunks      int
	BytesPerSecond   float64
	Path             string
	Error            string
}

// DownloadInfo is a read-only snapshot of a download's state, returned
// by the Manager's accessor methods.
type DownloadInfo struct {
	ID               string
	ShareCode        string
	PeerID           string
	PeerNickname     string
	Filename         string
	OutputPath       string
	TotalSize        int64
	ChunkCount       int
	DownloadedChunks int
	Status           Status
	BytesPerSecond   float64
	Error            string
	StartedAt        time.Time
	FinishedAt       time.Time
}

type downloadState struct {
	id           string
	shareCode    string
	peerID       string
	peerNickname string
	filename     string
	outputPath   string
	tempPath     string
	totalSize    int64
	chunkCount   int
	hash         string
	status       Status
	startedAt    time.Time
	finishedAt   time.Time
	errMsg       string

	file             *os.File
	requested        []bool
	received         []bool
	nextChunk        int
	downloadedChunks int
	bytesDownloaded  int64
	rate             rateTracker
}

func (s *downloadState) snapshot() DownloadInfo {
	return DownloadInfo{
		ID:               s.id,
		ShareCode:        s.shareCode,
		PeerID:           s.peerID,
		PeerNickname:     s.peerNickname,
		Filename:         s.filename,
		OutputPath:       s.outputPath,
		TotalSize:        s.totalSize,
		ChunkCount:       s.chunkCount,
		DownloadedChunks: s.downloadedChunks,
		Status:           s.status,
		BytesPerSecond:   s.rate.current(),
		Error:            s.errMsg,
		StartedAt:        s.startedAt,
		FinishedAt:       s.finishedAt,
	}
}

// rateTracker computes a trailing-5-second bytes/sec throughput, the
// ADDED progress-event field mirroring the original download manager's
// speed estimate.
type rateTracker struct {
	samples []rateSample
	last    float64
}

type rateSample struct {
	at    time.Time
	bytes int64
}

func (r *rateTracker) add(now time.Time, cumulativeBytes int64) float64 {
	r.samples = append(r.samples, rateSample{at: now, bytes: cumulativeBytes})
	cutoff := now.Add(-5 * time.Second)
	i := 0
	for i < len(r.samples)-1 && r.samples[i].at.Before(cutoff) {
		i++
	}
	r.samples = r.samples[i:]
	if len(r.samples) < 2 {
		r.last = 0
		return 0
	}
	first := r.samples[0]
	span := now.Sub(first.at).Seconds()
	if span <= 0 {
		return r.last
	}
	r.last = float64(cumulativeBytes-first.bytes) / span
	return r.last
}

func (r *rateTracker) current() float64 { return r.last }

// Manager owns every DownloadState and is the sole mutator of the
// downloader's state graph (§9's "node state graph" note, applied to
// the downloader's own slice of it).
type Manager struct {
	mu          sync.Mutex
	outputDir   string
	window      int
	requester   Requester
	downloads   map[string]*downloadState
	byShareCode map[string]string
	order       []string

	Events chan Event
}

// NewManager builds a Manager that writes completed downloads under
// outputDir and issues RPCs through requester.
func NewManager(outputDir string, requester Requester) *Manager {
	return &Manager{
		outputDir:   outputDir,
		window:      DefaultWindow,
		requester:   requester,
		downloads:   make(map[string]*downloadState),
		byShareCode: make(map[string]string),
		Events:      make(chan Event, 256),
	}
}

// Download starts a download from peerID/peerNickname for shareCode
// and returns immediately with a pending download-id; GetFileInfo and
// all chunk pulls happen in the background and are reported via
// Events.
func (m *Manager) Download(ctx context.Context, peerID, peerNickname, shareCode string) string {
	pendingID := fmt.Sprintf("pending_%s_%d", shareCode, time.Now().Unix())

	state := &downloadState{
		id:           pendingID,
		shareCode:    shareCode,
		peerID:       peerID,
		peerNickname: peerNickname,
		status:       StatusPending,
		startedAt:    time.Now(),
	}

	m.mu.Lock()
	m.downloads[pendingID] = state
	m.order = append(m.order, pendingID)
	m.mu.Unlock()

	go m.run(ctx, pendingID)
	return pendingID
}

func (m *Manager) run(ctx context.Context, pendingID string) {
	m.mu.Lock()
	state := m.downloads[pendingID]
	m.mu.Unlock()
	if state == nil {
		return // cancelled before the background run started
	}

	descriptor, err := m.requester.GetFileInfo(ctx, state.peerID, state.shareCode)

	m.mu.Lock()
	if _, ok := m.downloads[pendingID]; !ok {
		m.mu.Unlock()
		return // cancelled while GetFileInfo was in flight
	}
	if err != nil {
		m.failLocked(state, err.Error())
		m.mu.Unlock()
		return
	}
	if descriptor == nil {
		m.failLocked(state, fmt.Sprintf("share %s not found on peer", state.shareCode))
		m.mu.Unlock()
		return
	}

	finalID := fmt.Sprintf("dl_%s_%s_%d", descriptor.ID, state.peerID, time.Now().Unix())
	delete(m.downloads, pendingID)
	state.id = finalID
	state.filename = descriptor.Name
	state.totalSize = descriptor.Size
	state.chunkCount = descriptor.ChunkCount
	state.hash = descriptor.Hash
	m.downloads[finalID] = state
	m.byShareCode[state.shareCode] = finalID
	for i, id := range m.order {
		if id == pendingID {
			m.order[i] = finalID
			break
		}
	}

	outputPath, err := resolveOutputName(m.outputDir, descriptor.Name)
	if err != nil {
		m.failLocked(state, err.Error())
		m.mu.Unlock()
		return
	}
	tempPath := outputPath + ".downloading"
	file, err := os.Create(tempPath)
	if err != nil {
		m.failLocked(state, err.Error())
		m.mu.Unlock()
		return
	}
	if err := file.Truncate(descriptor.Size); err != nil {
		file.Close()
		m.failLocked(state, err.Error())
		m.mu.Unlock()
		return
	}

	state.outputPath = outputPath
	state.tempPath = tempPath
	state.file = file
	state.requested = make([]bool, descriptor.ChunkCount)
	state.received = make([]bool, descriptor.ChunkCount)
	state.status = StatusActive

	m.emit(Event{
		Kind:         FileDownloadStarted,
		DownloadID:   finalID,
		ShareCode:    state.shareCode,
		FromPeer:     state.peerID,
		FromNickname: state.peerNickname,
		Filename:     state.filename,
		TotalChunks:  state.chunkCount,
	})

	window := m.window
	if descriptor.ChunkCount < window {
		window = descriptor.ChunkCount
	}
	for i := 0; i < window; i++ {
		state.requested[i] = true
		state.nextChunk = i + 1
		go m.fetchChunk(ctx, finalID, state.peerID, state.shareCode, i)
	}
	m.mu.Unlock()
}

func (m *Manager) fetchChunk(ctx context.Context, downloadID, peerID, shareCode string, index int) {
	payload, err := m.requester.GetChunk(ctx, peerID, shareCode, index)
	m.onChunkResult(ctx, downloadID, index, payload, err)
}

func (m *Manager) onChunkResult(ctx context.Context, downloadID string, index int, payload *transfer.ChunkPayload, err error) {
	m.mu.Lock()

	state, ok := m.downloads[downloadID]
	if !ok || state.status != StatusActive {
		m.mu.Unlock()
		return // download cancelled or already terminal; discard silently
	}
	if err != nil {
		m.failLocked(state, err.Error())
		if state.tempPath != "" {
			os.Remove(state.tempPath) // transport failures delete the temp file
		}
		m.mu.Unlock()
		return
	}
	if payload == nil {
		m.failLocked(state, fmt.Sprintf("chunk %d not found on peer", index))
		m.mu.Unlock()
		return
	}

	sum := blake3.Sum256(payload.Data)
	if hex.EncodeToString(sum[:]) != payload.Hash {
		m.failLocked(state, fmt.Sprintf("Chunk %d hash mismatch", index))
		m.mu.Unlock()
		return
	}

	if _, err := state.file.WriteAt(payload.Data, int64(index)*transfer.ChunkSize); err != nil {
		m.failLocked(state, err.Error())
		m.mu.Unlock()
		return
	}

	if !state.received[index] {
		state.received[index] = true
		state.downloadedChunks++
	}
	state.bytesDownloaded += int64(len(payload.Data))
	rate := state.rate.add(time.Now(), state.bytesDownloaded)

	m.emit(Event{
		Kind:             FileDownloadProgress,
		DownloadID:       state.id,
		ShareCode:        state.shareCode,
		FromPeer:         state.peerID,
		FromNickname:     state.peerNickname,
		Filename:         state.filename,
		DownloadedChunks: state.downloadedChunks,
		TotalChunks:      state.chunkCount,
		BytesPerSecond:   rate,
	})

	if state.nextChunk < state.chunkCount {
		next := state.nextChunk
		state.nextChunk++
		go m.fetchChunk(ctx, downloadID, state.peerID, state.shareCode, next)
	}

	if state.downloadedChunks == state.chunkCount {
		file, tempPath, outputPath, expectedHash := state.file, state.tempPath, state.outputPath, state.hash
		m.mu.Unlock()
		go m.finishDownload(downloadID, file, tempPath, outputPath, expectedHash)
		return
	}
	m.mu.Unlock()
}

func (m *Manager) finishDownload(downloadID string, file *os.File, tempPath, outputPath, expectedHash string) {
	defer file.Close()

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		m.markTerminal(downloadID, false, err.Error(), "")
		return
	}
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		m.markTerminal(downloadID, false, err.Error(), "")
		return
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != expectedHash {
		m.markTerminal(downloadID, false, "File hash verification failed", "")
		return
	}
	if err := os.Rename(tempPath, outputPath); err != nil {
		m.markTerminal(downloadID, false, err.Error(), "")
		return
	}
	m.markTerminal(downloadID, true, "", outputPath)
}

func (m *Manager) markTerminal(downloadID string, success bool, errMsg, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.downloads[downloadID]
	if !ok {
		return // cancelled while finalizing
	}
	state.finishedAt = time.Now()
	if success {
		state.status = StatusCompleted
		m.emit(Event{
			Kind:         FileDownloadCompleted,
			DownloadID:   state.id,
			ShareCode:    state.shareCode,
			FromPeer:     state.peerID,
			FromNickname: state.peerNickname,
			Filename:     state.filename,
			Path:         path,
		})
		return
	}
	state.status = StatusFailed
	state.errMsg = errMsg
	m.emit(Event{
		Kind:         FileDownloadFailed,
		DownloadID:   state.id,
		ShareCode:    state.shareCode,
		FromPeer:     state.peerID,
		FromNickname: state.peerNickname,
		Filename:     state.filename,
		Error:        errMsg,
	})
}

// failLocked marks state failed and emits FileDownloadFailed. Callers
// must hold m.mu and state must still be present in m.downloads.
func (m *Manager) failLocked(state *downloadState, msg string) {
	state.status = StatusFailed
	state.errMsg = msg
	state.finishedAt = time.Now()
	if state.file != nil {
		state.file.Close()
	}
	m.emit(Event{
		Kind:         FileDownloadFailed,
		DownloadID:   state.id,
		ShareCode:    state.shareCode,
		FromPeer:     state.peerID,
		FromNickname: state.peerNickname,
		Filename:     state.filename,
		Error:        msg,
	})
}

func (m *Manager) emit(ev Event) {
	select {
	case m.Events <- ev:
	default:
		// Slow consumer: drop rather than block the download goroutine.
	}
}

// Cancel drops downloadID's state. In-flight chunk responses for it
// are subsequently discarded silently (§4.J's cooperative-cancellation
// note).
func (m *Manager) Cancel(downloadID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.downloads[downloadID]
	if !ok {
		return false
	}
	if state.file != nil {
		state.file.Close()
	}
	delete(m.downloads, downloadID)
	if m.byShareCode[state.shareCode] == downloadID {
		delete(m.byShareCode, state.shareCode)
	}
	return true
}

// GetActiveDownloads returns every download not yet in a terminal state.
func (m *Manager) GetActiveDownloads() []DownloadInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []DownloadInfo
	for _, id := range m.order {
		state, ok := m.downloads[id]
		if !ok || state.status == StatusCompleted || state.status == StatusFailed {
			continue
		}
		out = append(out, state.snapshot())
	}
	return out
}

// GetDownloadByShareCode returns the most recent download for shareCode.
func (m *Manager) GetDownloadByShareCode(shareCode string) (DownloadInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byShareCode[shareCode]
	if !ok {
		return DownloadInfo{}, false
	}
	state, ok := m.downloads[id]
	if !ok {
		return DownloadInfo{}, false
	}
	return state.snapshot(), true
}

// GetDownloadsFromPeer returns every tracked download from peerNickname.
func (m *Manager) GetDownloadsFromPeer(peerNickname string) []DownloadInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []DownloadInfo
	for _, id := range m.order {
		state, ok := m.downloads[id]
		if !ok || state.peerNickname != peerNickname {
			continue
		}
		out = append(out, state.snapshot())
	}
	return out
}

// GetRecentDownloads returns up to n downloads, most recently started
// first, regardless of status.
func (m *Manager) GetRecentDownloads(n int) []DownloadInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DownloadInfo, 0, n)
	for i := len(m.order) - 1; i >= 0 && len(out) < n; i-- {
		state, ok := m.downloads[m.order[i]]
		if !ok {
			continue
		}
		out = append(out, state.snapshot())
	}
	return out
}

// CleanupDownloads drops every completed or failed download and
// returns the number removed.
func (m *Manager) CleanupDownloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	kept := m.order[:0]
	for _, id := range m.order {
		state, ok := m.downloads[id]
		if !ok {
			continue
		}
		if state.status == StatusCompleted || state.status == StatusFailed {
			delete(m.downloads, id)
			if m.byShareCode[state.shareCode] == id {
				delete(m.byShareCode, state.shareCode)
			}
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed
}

// resolveOutputName finds a non-colliding path under dir for name,
// trying name_1 .. name_999 before falling back to name_<epoch>.
func resolveOutputName(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; i <= 999; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, time.Now().Unix(), ext)), nil
}
