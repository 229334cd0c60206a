package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/omnidrive/omnidrive/internal/logger"
	"github.com/omnidrive/omnidrive/pkg/metrics"
	"github.com/omnidrive/omnidrive/pkg/namespace"
	"github.com/omnidrive/omnidrive/pkg/provider"
	"github.com/omnidrive/omnidrive/pkg/provider/registry"
	"github.com/omnidrive/omnidrive/pkg/rules"
)

const (
	// DefaultChunkSize balances request overhead against retry cost.
	DefaultChunkSize int64 = 8 << 20

	// DefaultSessionTTL bounds how long an abandoned session holds its
	// spool file and remote multipart state.
	DefaultSessionTTL = 24 * time.Hour

	// maxForwardAttempts caps backend forwarding tries per assembly run.
	maxForwardAttempts = 3

	// forwardBackoffBase is the first retry delay; each retry doubles it.
	forwardBackoffBase = time.Second
)

// StateError reports an operation applied to a session in the wrong
// state (chunk after cancel, retry of a completed upload, and so on).
type StateError struct {
	SessionID string
	Message   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("upload session %s: %s", e.SessionID, e.Message)
}

// AdapterResolver matches namespace.AdapterResolver; redeclared here so
// the package depends on the contract, not the namespace package's alias.
type AdapterResolver interface {
	Resolve(ctx context.Context, workspaceID, providerID string) (provider.Adapter, error)
}

// Orchestrator drives chunked upload sessions end to end: destination
// selection, chunk intake, backend forwarding, and namespace
// registration.
//
// Concurrency model: one mutex per session serializes all operations on
// that session (chunks for one session may still arrive concurrently -
// they queue on the lock), while different sessions proceed fully in
// parallel.
type Orchestrator struct {
	sessions SessionStore
	configs  provider.ConfigStore
	rules    rules.Store
	resolver AdapterResolver
	ns       *namespace.Manager
	hub      *Hub
	metrics  metrics.UploadMetrics

	spoolDir          string
	chunkSize         int64
	sessionTTL        time.Duration
	defaultProviderID string
	backoffBase       time.Duration

	locks lockTable
}

// Options configures an Orchestrator.
type Options struct {
	Sessions SessionStore
	Configs  provider.ConfigStore
	Rules    rules.Store
	Resolver AdapterResolver
	Names    *namespace.Manager
	Hub      *Hub
	Metrics  metrics.UploadMetrics

	// SpoolDir holds relay staging files.
	SpoolDir string

	// ChunkSize overrides DefaultChunkSize when positive.
	ChunkSize int64

	// SessionTTL overrides DefaultSessionTTL when positive.
	SessionTTL time.Duration

	// DefaultProviderID receives files no routing rule claims. Empty
	// means unrouted uploads are rejected.
	DefaultProviderID string

	// ForwardBackoff overrides the first retry delay when positive.
	ForwardBackoff time.Duration
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUploadMetrics()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.ForwardBackoff <= 0 {
		opts.ForwardBackoff = forwardBackoffBase
	}
	return &Orchestrator{
		sessions:          opts.Sessions,
		configs:           opts.Configs,
		rules:             opts.Rules,
		resolver:          opts.Resolver,
		ns:                opts.Names,
		hub:               opts.Hub,
		metrics:           opts.Metrics,
		spoolDir:          opts.SpoolDir,
		chunkSize:         opts.ChunkSize,
		sessionTTL:        opts.SessionTTL,
		defaultProviderID: opts.DefaultProviderID,
		backoffBase:       opts.ForwardBackoff,
	}
}

// Hub exposes the progress hub for subscription endpoints.
func (o *Orchestrator) Hub() *Hub {
	return o.hub
}

// InitiateRequest describes a new upload.
type InitiateRequest struct {
	WorkspaceID  string
	FileName     string
	Size         int64
	MimeType     string
	ParentNodeID string

	// ProviderID overrides rule-based routing when set.
	ProviderID string

	// ChunkSize overrides the orchestrator default when positive.
	ChunkSize int64
}

// Initiate creates a session and, depending on the destination backend's
// capabilities, either opens a direct multipart upload (clients push
// chunks straight to the backend) or reserves a relay spool (clients push
// chunks through the server).
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	name, err := namespace.SanitizeName(req.FileName)
	if err != nil {
		return nil, err
	}
	if req.Size <= 0 {
		return nil, &StateError{Message: "size must be positive"}
	}

	providerID, parentNodeID, err := o.routeUpload(ctx, req, name)
	if err != nil {
		return nil, err
	}

	cfg, err := o.configs.Get(ctx, req.WorkspaceID, providerID)
	if err != nil {
		return nil, err
	}
	caps, err := registry.Capabilities(cfg.Type)
	if err != nil {
		return nil, err
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = o.chunkSize
	}
	totalChunks := int(req.Size / chunkSize)
	if req.Size%chunkSize != 0 || totalChunks == 0 {
		totalChunks++
	}

	parentRemoteID := ""
	if parentNodeID != "" {
		parent, err := o.ns.Get(ctx, req.WorkspaceID, parentNodeID)
		if err != nil {
			return nil, err
		}
		parentRemoteID = parent.RemoteID
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.NewString(),
		WorkspaceID:  req.WorkspaceID,
		FileName:     name,
		Size:         req.Size,
		MimeType:     req.MimeType,
		ChunkSize:    chunkSize,
		TotalChunks:  totalChunks,
		Received:     make([]bool, totalChunks),
		ProviderID:   providerID,
		ParentNodeID: parentNodeID,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(o.sessionTTL),
	}

	// Mode negotiation: the backend's capability flag decides how chunks
	// travel.
	if err := session.transition(StatusNegotiating); err != nil {
		return nil, err
	}

	err = o.withAdapter(ctx, req.WorkspaceID, providerID, func(adapter provider.Adapter) error {
		if caps.SupportsDirectUpload {
			mp, ok := adapter.(provider.MultipartUploader)
			if !ok {
				return provider.NewError(cfg.Type, "initiate", "", provider.CodeUnsupported,
					"backend advertises direct upload but lacks multipart support", nil)
			}
			opened, err := mp.BeginMultipart(ctx, name, parentRemoteID, req.Size, chunkSize)
			if err != nil {
				return err
			}
			session.Mode = ModeDirect
			session.RemoteID = opened.RemoteID
			session.UploadID = opened.UploadID
			session.Parts = opened.Parts
			return nil
		}

		ticket, err := adapter.RequestUpload(ctx, name, parentRemoteID)
		if err != nil {
			return err
		}
		session.Mode = ModeRelay
		session.RemoteID = ticket.RemoteID

		sp, err := createSpool(o.spoolDir, session.ID, req.Size)
		if err != nil {
			return err
		}
		session.SpoolPath = sp.path
		return sp.close()
	})
	if err != nil {
		return nil, err
	}

	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	provider.TouchLastUsedAsync(o.configs, req.WorkspaceID, providerID)
	o.metrics.SessionStarted(string(session.Mode))
	o.metrics.ActiveSessionsAdd(1)
	o.publish(session)

	logger.Info("upload session %s initiated: %s (%d bytes, %d chunks, %s via %s)",
		session.ID, name, req.Size, totalChunks, session.Mode, providerID)
	return session, nil
}

// routeUpload picks the destination provider and folder: an explicit
// provider override wins, then the rule engine, then the configured
// default. A matched rule's destination folder applies only when the
// request did not name a parent itself.
func (o *Orchestrator) routeUpload(ctx context.Context, req InitiateRequest, name string) (providerID, parentNodeID string, err error) {
	if req.ProviderID != "" {
		return req.ProviderID, req.ParentNodeID, nil
	}

	configs, err := o.configs.List(ctx, req.WorkspaceID)
	if err != nil {
		return "", "", err
	}
	active := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if !cfg.Disabled && !cfg.Deleted {
			active[cfg.ID] = true
		}
	}

	ruleSet, err := o.rules.List(ctx, req.WorkspaceID)
	if err != nil {
		return "", "", err
	}

	info := rules.FileInfo{Name: name, Size: req.Size, MimeType: req.MimeType}
	if rule, ok := rules.Evaluate(ruleSet, info, active); ok {
		parentNodeID = req.ParentNodeID
		if parentNodeID == "" {
			parentNodeID = rule.DestinationFolderID
		}
		return rule.ProviderID, parentNodeID, nil
	}

	if o.defaultProviderID != "" && active[o.defaultProviderID] {
		return o.defaultProviderID, req.ParentNodeID, nil
	}
	return "", "", &StateError{Message: "no routing rule matched and no default provider is configured"}
}

// PutChunk stores one relayed chunk at its offset. Chunks may arrive in
// any order; re-sending an already-received index overwrites it
// idempotently. When the last chunk lands, forwarding starts in the
// background.
func (o *Orchestrator) PutChunk(ctx context.Context, sessionID string, index int, data io.Reader) (*Session, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Mode != ModeRelay {
		return nil, &StateError{SessionID: sessionID, Message: "direct-mode sessions receive chunks at the backend, not here"}
	}
	if session.Status != StatusNegotiating && session.Status != StatusReceiving {
		return nil, &StateError{SessionID: sessionID, Message: fmt.Sprintf("cannot accept chunks in state %s", session.Status)}
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, &StateError{SessionID: sessionID, Message: fmt.Sprintf("chunk index %d out of range [0,%d)", index, session.TotalChunks)}
	}

	sp, err := openSpool(session.SpoolPath)
	if err != nil {
		return nil, err
	}
	writeErr := sp.writeChunk(int64(index)*session.ChunkSize, session.chunkLength(index), data)
	sp.close()
	if writeErr != nil {
		return nil, writeErr
	}

	session.Received[index] = true
	if err := session.transition(StatusReceiving); err != nil {
		return nil, err
	}
	session.Progress = session.receiveProgress()
	o.metrics.ChunkReceived(session.chunkLength(index))

	startAssembly := session.allReceived()
	if startAssembly {
		if err := session.transition(StatusAssembling); err != nil {
			return nil, err
		}
	}

	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	o.publish(session)

	if startAssembly {
		// Forwarding outlives the chunk request.
		go o.assemble(context.Background(), session.ID)
	}
	return session, nil
}

// assemble streams the fully staged file to the backend, retrying
// transient failures with exponential backoff.
func (o *Orchestrator) assemble(ctx context.Context, sessionID string) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		logger.Error("assembly: session %s vanished: %v", sessionID, err)
		return
	}
	if session.Status != StatusAssembling {
		// Cancelled while queued.
		return
	}

	permanentID := ""
	err = o.withAdapter(ctx, session.WorkspaceID, session.ProviderID, func(adapter provider.Adapter) error {
		var lastErr error
		for attempt := 1; attempt <= maxForwardAttempts; attempt++ {
			if attempt > 1 {
				o.metrics.AssemblyRetried()
				delay := o.backoffBase << (attempt - 2)
				logger.Warn("upload session %s: forward attempt %d/%d after %v: %v",
					sessionID, attempt, maxForwardAttempts, delay, lastErr)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			session.Attempts++

			sp, err := openSpool(session.SpoolPath)
			if err != nil {
				return err
			}
			reader, err := sp.reader()
			if err != nil {
				sp.close()
				return err
			}

			// Forwarding occupies the 50-100% progress band.
			progress := &progressReader{
				r:     reader,
				total: session.Size,
				onChange: func(fraction float64) {
					o.hub.Publish(Event{
						SessionID: session.ID,
						Status:    StatusAssembling,
						Progress:  50 + 50*fraction,
					})
				},
			}

			id, err := adapter.UploadFile(ctx, session.RemoteID, progress, session.Size)
			sp.close()
			if err == nil {
				permanentID = id
				return nil
			}
			lastErr = err
			// Only transient transport failures earn another attempt.
			if !provider.IsCode(err, provider.CodeConnection) {
				return lastErr
			}
		}
		return lastErr
	})

	if err != nil {
		o.finishFailed(ctx, session, err)
		return
	}

	// Backends that issue provisional upload ids return the durable one
	// here; record it, never the ticket.
	session.RemoteID = permanentID
	o.finishCompleted(ctx, session)
}

// ConfirmPart records a part the client pushed directly to the backend.
func (o *Orchestrator) ConfirmPart(ctx context.Context, sessionID string, partNumber int, etag string) (*Session, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Mode != ModeDirect {
		return nil, &StateError{SessionID: sessionID, Message: "relay sessions have no backend parts to confirm"}
	}
	if session.Status != StatusNegotiating && session.Status != StatusReceiving {
		return nil, &StateError{SessionID: sessionID, Message: fmt.Sprintf("cannot confirm parts in state %s", session.Status)}
	}
	if partNumber < 1 || partNumber > session.TotalChunks {
		return nil, &StateError{SessionID: sessionID, Message: fmt.Sprintf("part number %d out of range [1,%d]", partNumber, session.TotalChunks)}
	}

	replaced := false
	for i, p := range session.ConfirmedParts {
		if p.PartNumber == partNumber {
			session.ConfirmedParts[i].ETag = etag
			replaced = true
			break
		}
	}
	if !replaced {
		session.ConfirmedParts = append(session.ConfirmedParts, provider.CompletedPart{
			PartNumber: partNumber,
			ETag:       etag,
		})
	}
	session.Received[partNumber-1] = true

	if err := session.transition(StatusReceiving); err != nil {
		return nil, err
	}
	// Direct mode has no forwarding phase, so confirmations span the
	// whole bar short of the final completion call.
	session.Progress = 99 * float64(len(session.ConfirmedParts)) / float64(session.TotalChunks)

	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	o.publish(session)
	return session, nil
}

// ReportPartFailure records a client-reported failure pushing a part
// straight to the backend and fails the session. On resume-capable
// backends the failed session stays eligible for Retry with its confirmed
// parts intact.
func (o *Orchestrator) ReportPartFailure(ctx context.Context, sessionID string, partNumber int, message string) (*Session, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Mode != ModeDirect {
		return nil, &StateError{SessionID: sessionID, Message: "relay sessions fail server-side, no client report needed"}
	}
	if session.Status != StatusNegotiating && session.Status != StatusReceiving {
		return nil, &StateError{SessionID: sessionID, Message: fmt.Sprintf("cannot report part failures in state %s", session.Status)}
	}
	if partNumber < 1 || partNumber > session.TotalChunks {
		return nil, &StateError{SessionID: sessionID, Message: fmt.Sprintf("part number %d out of range [1,%d]", partNumber, session.TotalChunks)}
	}

	if message == "" {
		message = "client reported transfer failure"
	}
	o.finishFailed(ctx, session, fmt.Errorf("part %d: %s", partNumber, message))
	return session, nil
}

// CompleteDirect finalizes a direct-mode upload once every part is
// confirmed.
func (o *Orchestrator) CompleteDirect(ctx context.Context, sessionID string) (*Session, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Mode != ModeDirect {
		return nil, &StateError{SessionID: sessionID, Message: "relay sessions complete automatically"}
	}
	if !session.allReceived() {
		return nil, &StateError{SessionID: sessionID,
			Message: fmt.Sprintf("only %d of %d parts confirmed", session.receivedCount(), session.TotalChunks)}
	}
	if err := session.transition(StatusAssembling); err != nil {
		return nil, err
	}

	err = o.withAdapter(ctx, session.WorkspaceID, session.ProviderID, func(adapter provider.Adapter) error {
		mp, ok := adapter.(provider.MultipartUploader)
		if !ok {
			return &StateError{SessionID: sessionID, Message: "backend lost multipart support"}
		}
		return mp.CompleteMultipart(ctx, session.RemoteID, session.UploadID, session.ConfirmedParts)
	})
	if err != nil {
		o.finishFailed(ctx, session, err)
		return session, err
	}

	o.finishCompleted(ctx, session)
	return session, nil
}

// Cancel aborts a session. Idempotent: cancelling an already-cancelled
// session succeeds without side effects. Completed sessions cannot be
// cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	switch session.Status {
	case StatusCancelled:
		return nil
	case StatusCompleted:
		return &StateError{SessionID: sessionID, Message: "cannot cancel a completed upload"}
	}

	// Best-effort backend cleanup; local state wins regardless.
	if session.Mode == ModeDirect && session.UploadID != "" {
		err := o.withAdapter(ctx, session.WorkspaceID, session.ProviderID, func(adapter provider.Adapter) error {
			mp, ok := adapter.(provider.MultipartUploader)
			if !ok {
				return nil
			}
			return mp.AbortMultipart(ctx, session.RemoteID, session.UploadID)
		})
		if err != nil {
			logger.Warn("upload session %s: multipart abort failed: %v", sessionID, err)
		}
	}
	if session.SpoolPath != "" {
		if sp, err := openSpool(session.SpoolPath); err == nil {
			if err := sp.remove(); err != nil {
				logger.Warn("upload session %s: spool removal failed: %v", sessionID, err)
			}
		}
	}

	wasFailed := session.Status == StatusFailed
	if err := session.transition(StatusCancelled); err != nil {
		return err
	}
	session.Error = ""
	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}

	// A failed session already emitted its terminal event and released
	// its active-session slot; cancelling it is bookkeeping only.
	if !wasFailed {
		o.metrics.SessionFinished(string(session.Mode), "cancelled")
		o.metrics.ActiveSessionsAdd(-1)
		o.publish(session)
	}
	return nil
}

// Retry restarts a failed session through a fresh negotiating pass.
// Relay sessions with a fully staged spool re-forward immediately; relay
// sessions missing chunks wait for them again. Direct sessions on
// resume-capable backends keep their confirmed parts.
func (o *Orchestrator) Retry(ctx context.Context, sessionID string) (*Session, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != StatusFailed {
		return nil, &StateError{SessionID: sessionID, Message: fmt.Sprintf("can only retry failed sessions, not %s", session.Status)}
	}

	if session.Mode == ModeDirect {
		cfg, err := o.configs.Get(ctx, session.WorkspaceID, session.ProviderID)
		if err != nil {
			return nil, err
		}
		caps, err := registry.Capabilities(cfg.Type)
		if err != nil {
			return nil, err
		}
		if !caps.SupportsResume {
			return nil, &StateError{SessionID: sessionID, Message: "backend does not support resuming; start a new upload"}
		}
	}

	session.Error = ""
	session.ExpiresAt = time.Now().Add(o.sessionTTL)
	if err := session.transition(StatusNegotiating); err != nil {
		return nil, err
	}

	startAssembly := session.Mode == ModeRelay && session.allReceived()
	if startAssembly {
		if err := session.transition(StatusAssembling); err != nil {
			return nil, err
		}
	}

	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	o.metrics.ActiveSessionsAdd(1)
	o.publish(session)

	if startAssembly {
		go o.assemble(context.Background(), session.ID)
	}
	return session, nil
}

// Get returns the session's current state.
func (o *Orchestrator) Get(ctx context.Context, sessionID string) (*Session, error) {
	return o.sessions.Get(ctx, sessionID)
}

// finishCompleted registers the finished file in the namespace and
// closes out the session.
func (o *Orchestrator) finishCompleted(ctx context.Context, session *Session) {
	node := &namespace.Node{
		WorkspaceID: session.WorkspaceID,
		Name:        session.FileName,
		Type:        namespace.NodeFile,
		ProviderID:  session.ProviderID,
		RemoteID:    session.RemoteID,
		ParentID:    session.ParentNodeID,
		Size:        session.Size,
		MimeType:    session.MimeType,
	}
	if err := o.ns.Register(ctx, node); err != nil {
		// Content is on the backend but invisible in the tree; a failed
		// registration must surface as a failed upload.
		o.finishFailed(ctx, session, fmt.Errorf("register uploaded file: %w", err))
		return
	}

	session.NodeID = node.ID
	session.Progress = 100
	if err := session.transition(StatusCompleted); err != nil {
		logger.Error("%v", err)
		return
	}
	if session.SpoolPath != "" {
		if sp, err := openSpool(session.SpoolPath); err == nil {
			_ = sp.remove()
		}
		session.SpoolPath = ""
	}
	if err := o.sessions.Update(ctx, session); err != nil {
		logger.Error("upload session %s: final state not persisted: %v", session.ID, err)
	}

	o.metrics.SessionFinished(string(session.Mode), "completed")
	o.metrics.ActiveSessionsAdd(-1)
	o.publish(session)
	logger.Info("upload session %s completed: %s -> %s", session.ID, session.FileName, session.RemoteID)
}

func (o *Orchestrator) finishFailed(ctx context.Context, session *Session, cause error) {
	session.Error = cause.Error()
	if err := session.transition(StatusFailed); err != nil {
		logger.Error("%v", err)
		return
	}
	if err := o.sessions.Update(ctx, session); err != nil {
		logger.Error("upload session %s: failed state not persisted: %v", session.ID, err)
	}

	o.metrics.SessionFinished(string(session.Mode), "failed")
	o.metrics.ActiveSessionsAdd(-1)
	o.publish(session)
	logger.Error("upload session %s failed: %v", session.ID, cause)
}

func (o *Orchestrator) publish(session *Session) {
	o.hub.Publish(Event{
		SessionID: session.ID,
		Status:    session.Status,
		Progress:  session.Progress,
		Error:     session.Error,
		NodeID:    session.NodeID,
	})
}

func (o *Orchestrator) withAdapter(ctx context.Context, workspaceID, providerID string, fn func(provider.Adapter) error) error {
	adapter, err := o.resolver.Resolve(ctx, workspaceID, providerID)
	if err != nil {
		return err
	}
	return provider.WithAdapter(ctx, adapter, fn)
}
