package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

type Operation int

const (
	OpSaveUser Operation = iota
	OpGetUser
	OpSaveRequest
	OpGetRequest
	OpListLiveRequests
	OpSaveSession
	OpGetSession
	OpAppendOutcome
	OpReadOutcomes
	OpAppendAudit
	OpReadAudit
)

type Request struct {
	Op       Operation
	Payload  interface{}
	Result   chan error
	Response chan interface{}
}

type SaveUserPayload struct {
	User *model.User
}

type GetUserPayload struct {
	UserID string
}

type SaveRequestPayload struct {
	Request *model.MeetingRequest
}

type GetRequestPayload struct {
	RequestID string
}

type SaveSessionPayload struct {
	Session *model.SessionRecord
}

type GetSessionPayload struct {
	SessionID string
}

type AppendOutcomePayload struct {
	Outcome model.Outcome
}

type ReadOutcomesPayload struct {
	UserID string
	Limit  int // 0 = all
}

type AppendAuditPayload struct {
	Entry model.AuditEntry
}

type ReadAuditPayload struct {
	Limit int // 0 = all
}

// Worker owns all persistent state and serializes every mutation through a
// single goroutine, so index writes never race and outcome logs stay
// append-only.
type Worker struct {
	basePath string
	inbox    chan Request
	fileLock *FileLock
	quit     chan struct{}
	wg       sync.WaitGroup
	users    *UserIndex
	requests *RequestIndex
	sessions *SessionIndex
	running  stdatomic.Bool
}

type RuntimeConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
	InboxSize    int
}

func NewWorker(basePath string, runtimeCfg RuntimeConfig) (*Worker, error) {
	if strings.TrimSpace(basePath) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Join(home, ".kairos", "data")
	}

	dirs := []string{
		basePath,
		filepath.Join(basePath, "outcomes"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", d, err)
		}
	}

	if runtimeCfg.LockTimeout <= 0 {
		lockTimeout, err := config.DurationOrDefault("", config.DefaultStoreLockTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse default store lock timeout: %w", err)
		}
		runtimeCfg.LockTimeout = lockTimeout
	}
	if runtimeCfg.LockRetry <= 0 {
		lockRetry, err := config.DurationOrDefault("", config.DefaultStoreLockRetry)
		if err != nil {
			return nil, fmt.Errorf("parse default store lock retry: %w", err)
		}
		runtimeCfg.LockRetry = lockRetry
	}
	if runtimeCfg.LockMaxRetry <= 0 {
		runtimeCfg.LockMaxRetry = 300
	}
	if runtimeCfg.InboxSize <= 0 {
		runtimeCfg.InboxSize = config.DefaultStoreInboxSize
	}

	fileLock, err := NewFileLock(basePath, &FileLockConfig{
		LockTimeout:  runtimeCfg.LockTimeout,
		LockRetry:    runtimeCfg.LockRetry,
		LockMaxRetry: runtimeCfg.LockMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	w := &Worker{
		basePath: basePath,
		inbox:    make(chan Request, runtimeCfg.InboxSize),
		fileLock: fileLock,
		quit:     make(chan struct{}),
		users:    &UserIndex{Users: make(map[string]model.User)},
		requests: &RequestIndex{Requests: make(map[string]model.MeetingRequest)},
		sessions: &SessionIndex{Sessions: make(map[string]model.SessionRecord)},
	}

	w.loadIndex("users.json", w.users)
	w.loadIndex("requests.json", w.requests)
	w.loadIndex("sessions.json", w.sessions)

	return w, nil
}

func (w *Worker) loadIndex(name string, target interface{}) {
	path := filepath.Join(w.basePath, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, target); err != nil {
		slog.Warn("Failed to parse index, starting fresh", "file", name, "error", err)
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) loop() {
	slog.Info("StoreWorker started", "path", w.basePath)
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		w.wg.Done()
	}()

	for {
		select {
		case req := <-w.inbox:
			err := w.handle(req)
			if req.Result != nil {
				req.Result <- err
			}
		case <-w.quit:
			slog.Info("StoreWorker stopping")
			return
		}
	}
}

func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()
	w.fileLock.Unlock()
}

func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

func (w *Worker) handle(req Request) error {
	switch req.Op {
	case OpSaveUser:
		p, ok := req.Payload.(SaveUserPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveUser")
		}
		w.users.Users[p.User.ID] = *p.User
		return w.saveIndex("users.json", w.users)
	case OpGetUser:
		p, ok := req.Payload.(GetUserPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetUser")
		}
		if u, ok := w.users.Users[p.UserID]; ok {
			req.Response <- &u
		} else {
			req.Response <- (*model.User)(nil)
		}
		return nil
	case OpSaveRequest:
		p, ok := req.Payload.(SaveRequestPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveRequest")
		}
		w.requests.Requests[p.Request.ID] = *p.Request
		return w.saveIndex("requests.json", w.requests)
	case OpGetRequest:
		p, ok := req.Payload.(GetRequestPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetRequest")
		}
		if r, ok := w.requests.Requests[p.RequestID]; ok {
			req.Response <- &r
		} else {
			req.Response <- (*model.MeetingRequest)(nil)
		}
		return nil
	case OpListLiveRequests:
		var live []model.MeetingRequest
		for _, r := range w.requests.Requests {
			if r.Status == model.RequestPending || r.Status == model.RequestAccepted {
				live = append(live, r)
			}
		}
		req.Response <- live
		return nil
	case OpSaveSession:
		p, ok := req.Payload.(SaveSessionPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveSession")
		}
		w.sessions.Sessions[p.Session.ID] = *p.Session
		return w.saveIndex("sessions.json", w.sessions)
	case OpGetSession:
		p, ok := req.Payload.(GetSessionPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetSession")
		}
		if s, ok := w.sessions.Sessions[p.SessionID]; ok {
			req.Response <- &s
		} else {
			req.Response <- (*model.SessionRecord)(nil)
		}
		return nil
	case OpAppendOutcome:
		p, ok := req.Payload.(AppendOutcomePayload)
		if !ok {
			return fmt.Errorf("invalid payload for AppendOutcome")
		}
		return w.appendOutcome(p.Outcome)
	case OpReadOutcomes:
		p, ok := req.Payload.(ReadOutcomesPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ReadOutcomes")
		}
		outcomes, err := w.readOutcomes(p.UserID, p.Limit)
		req.Response <- outcomes
		return err
	case OpAppendAudit:
		p, ok := req.Payload.(AppendAuditPayload)
		if !ok {
			return fmt.Errorf("invalid payload for AppendAudit")
		}
		return w.appendAudit(p.Entry)
	case OpReadAudit:
		p, ok := req.Payload.(ReadAuditPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ReadAudit")
		}
		entries, err := w.readAudit(p.Limit)
		req.Response <- entries
		return err
	default:
		return fmt.Errorf("unknown operation: %d", req.Op)
	}
}

func (w *Worker) saveIndex(name string, value interface{}) error {
	path := filepath.Join(w.basePath, name)
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func (w *Worker) appendOutcome(o model.Outcome) error {
	if o.ID == "" {
		o.ID = ulid.Make().String()
	}
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now()
	}
	path := filepath.Join(w.basePath, "outcomes", o.UserID+".jsonl")
	return w.appendLine(path, o)
}

func (w *Worker) readOutcomes(userID string, limit int) ([]model.Outcome, error) {
	path := filepath.Join(w.basePath, "outcomes", userID+".jsonl")
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	var outcomes []model.Outcome
	for _, line := range lines {
		var o model.Outcome
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			slog.Warn("Skipping corrupt outcome line", "user", userID, "error", err)
			continue
		}
		outcomes = append(outcomes, o)
	}

	if limit > 0 && len(outcomes) > limit {
		outcomes = outcomes[len(outcomes)-limit:]
	}
	return outcomes, nil
}

func (w *Worker) appendAudit(e model.AuditEntry) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	path := filepath.Join(w.basePath, "audit.jsonl")
	return w.appendLine(path, e)
}

func (w *Worker) readAudit(limit int) ([]model.AuditEntry, error) {
	path := filepath.Join(w.basePath, "audit.jsonl")
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	var entries []model.AuditEntry
	for _, line := range lines {
		var e model.AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (w *Worker) appendLine(path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	return f.Sync()
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return []string{}, nil
	}
	return lines, nil
}

// Public API for other components

func (w *Worker) SaveUser(u *model.User) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpSaveUser, Payload: SaveUserPayload{User: u}, Result: res}
	return <-res
}

func (w *Worker) GetUser(userID string) (*model.User, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpGetUser, Payload: GetUserPayload{UserID: userID}, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	u := (<-resp).(*model.User)
	if u == nil {
		return nil, errors.NotFound("user " + userID)
	}
	return u, nil
}

func (w *Worker) SaveRequest(r *model.MeetingRequest) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpSaveRequest, Payload: SaveRequestPayload{Request: r}, Result: res}
	return <-res
}

func (w *Worker) GetRequest(requestID string) (*model.MeetingRequest, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpGetRequest, Payload: GetRequestPayload{RequestID: requestID}, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	r := (<-resp).(*model.MeetingRequest)
	if r == nil {
		return nil, errors.NotFound("request " + requestID)
	}
	return r, nil
}

// ListLiveRequests returns requests that are PENDING or ACCEPTED.
func (w *Worker) ListLiveRequests() ([]model.MeetingRequest, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpListLiveRequests, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	live, _ := (<-resp).([]model.MeetingRequest)
	return live, nil
}

func (w *Worker) SaveSession(s *model.SessionRecord) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpSaveSession, Payload: SaveSessionPayload{Session: s}, Result: res}
	return <-res
}

func (w *Worker) GetSession(sessionID string) (*model.SessionRecord, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpGetSession, Payload: GetSessionPayload{SessionID: sessionID}, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	s := (<-resp).(*model.SessionRecord)
	if s == nil {
		return nil, errors.NotFound("session " + sessionID)
	}
	return s, nil
}

func (w *Worker) AppendOutcome(o model.Outcome) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpAppendOutcome, Payload: AppendOutcomePayload{Outcome: o}, Result: res}
	return <-res
}

// ReadOutcomes returns the trailing entries of a user's outcome log, oldest
// first. limit 0 reads the whole log.
func (w *Worker) ReadOutcomes(userID string, limit int) ([]model.Outcome, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpReadOutcomes, Payload: ReadOutcomesPayload{UserID: userID, Limit: limit}, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	outcomes, _ := (<-resp).([]model.Outcome)
	return outcomes, nil
}

func (w *Worker) AppendAudit(e model.AuditEntry) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpAppendAudit, Payload: AppendAuditPayload{Entry: e}, Result: res}
	return <-res
}

func (w *Worker) ReadAudit(limit int) ([]model.AuditEntry, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpReadAudit, Payload: ReadAuditPayload{Limit: limit}, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	entries, _ := (<-resp).([]model.AuditEntry)
	return entries, nil
}
