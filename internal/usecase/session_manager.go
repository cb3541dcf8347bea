package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"SaxoBridge/internal/domain/models"
	drepo "SaxoBridge/internal/domain/repository"
	"SaxoBridge/internal/service/frame"
	"SaxoBridge/internal/service/normalizer"
	"SaxoBridge/internal/service/saxo"
	"SaxoBridge/pkg/logger"
)

// StreamAPI is the upstream surface the session manager drives.
type StreamAPI interface {
	Subscribe(ctx context.Context, token, contextID, referenceID string, inst models.Instrument) error
	Unsubscribe(ctx context.Context, token, contextID, referenceID string) error
	ExtendSession(ctx context.Context, token, contextID string) error
	StreamURL(token, contextID string) string
}

// CloseResult is the outcome of CloseStream.
type CloseResult int

const (
	CloseNotFound CloseResult = iota
	CloseUnsubscribed
	CloseClosed
	CloseNothingRemoved
)

// Removed reports whether any subscription was dropped.
func (r CloseResult) Removed() bool {
	return r == CloseUnsubscribed || r == CloseClosed
}

// Message is the text returned to the client for r.
func (r CloseResult) Message() string {
	switch r {
	case CloseUnsubscribed:
		return "unsubscribed"
	case CloseClosed:
		return "stream closed"
	case CloseNothingRemoved:
		return "no matching subscription"
	}
	return "Streaming Connection not found"
}

var errContextGone = errors.New("streaming context closed")

// SessionManager owns one upstream streaming connection per user and
// the subscriptions multiplexed onto it.
type SessionManager struct {
	api        StreamAPI
	transport  drepo.StreamTransport
	tokens     drepo.TokenSource
	resolver   drepo.SymbolResolver
	decoder    *frame.Decoder
	normalizer *normalizer.Normalizer
	sink       drepo.TickSink
	metrics    drepo.Metrics
	logger     *logger.Logger
	bufSize    int

	runCtx context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	contexts map[string]*streamContext
	closed   bool
}

// NewSessionManager creates a manager. sink may be nil.
func NewSessionManager(
	api StreamAPI,
	transport drepo.StreamTransport,
	tokens drepo.TokenSource,
	resolver drepo.SymbolResolver,
	sink drepo.TickSink,
	metrics drepo.Metrics,
	l *logger.Logger,
	listenerBuffer int,
) *SessionManager {
	if listenerBuffer < 1 {
		listenerBuffer = 256
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		api:        api,
		transport:  transport,
		tokens:     tokens,
		resolver:   resolver,
		decoder:    frame.NewDecoder(l, metrics),
		normalizer: normalizer.New(l, metrics),
		sink:       sink,
		metrics:    metrics,
		logger:     l,
		bufSize:    listenerBuffer,
		runCtx:     runCtx,
		cancel:     cancel,
		contexts:   make(map[string]*streamContext),
	}
}

// OpenStream subscribes instruments on the user's context, creating and
// connecting it when absent, and attaches a new listener to it.
func (m *SessionManager) OpenStream(ctx context.Context, user string, instruments []models.Instrument) (*Stream, error) {
	if len(instruments) == 0 {
		return nil, fmt.Errorf("%w: no instruments", models.ErrInvalidRequest)
	}
	token, err := m.tokens.ValidToken(ctx, user)
	if err != nil {
		return nil, err
	}
	subs := m.prepare(ctx, token, user, instruments)
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: no instrument could be resolved", models.ErrNotFound)
	}

	for attempt := 0; attempt < 2; attempt++ {
		sc, err := m.acquire(user)
		if err != nil {
			return nil, err
		}
		var (
			st      *Stream
			openErr error
		)
		err = sc.do(ctx, func() { st, openErr = sc.open(ctx, token, subs) })
		if errors.Is(err, errContextGone) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return st, openErr
	}
	return nil, fmt.Errorf("%w: streaming context closed during open", models.ErrUpstreamUnavailable)
}

// CloseStream removes the named subscriptions and closes the context
// once none remain. Untracked instruments are ignored.
func (m *SessionManager) CloseStream(ctx context.Context, user string, instruments []models.Instrument) (CloseResult, error) {
	sc := m.lookup(saxo.ContextID(user))
	if sc == nil {
		return CloseNotFound, nil
	}
	token, err := m.tokens.ValidToken(ctx, user)
	if err != nil {
		return CloseNotFound, err
	}
	subs := m.prepare(ctx, token, user, instruments)

	var res CloseResult
	err = sc.do(ctx, func() { res = sc.close(ctx, token, subs) })
	if errors.Is(err, errContextGone) {
		return CloseNotFound, nil
	}
	return res, err
}

// Extend re-authorizes the user's live context with a fresh token. It is
// a no-op when the user has no context.
func (m *SessionManager) Extend(ctx context.Context, user, token string) error {
	sc := m.lookup(saxo.ContextID(user))
	if sc == nil {
		return nil
	}
	if err := m.api.ExtendSession(ctx, token, sc.id); err != nil {
		return fmt.Errorf("extend context %s: %w", sc.id, err)
	}
	sc.log.Info("streaming context re-authorized")
	return nil
}

// OnTokenRefreshed adapts Extend to the token manager's refresh listener.
func (m *SessionManager) OnTokenRefreshed(ctx context.Context, user, token string) {
	if err := m.Extend(ctx, user, token); err != nil {
		m.logger.Warn("failed to extend streaming context", logger.String("user", user), logger.Error(err))
	}
}

// Subscriptions lists the reference ids tracked for user, sorted. ok is
// false when the user has no context.
func (m *SessionManager) Subscriptions(ctx context.Context, user string) (refs []string, ok bool) {
	sc := m.lookup(saxo.ContextID(user))
	if sc == nil {
		return nil, false
	}
	err := sc.do(ctx, func() {
		for ref := range sc.subs {
			refs = append(refs, ref)
		}
	})
	if err != nil {
		return nil, false
	}
	sort.Strings(refs)
	return refs, true
}

// ActiveContexts reports the number of live contexts.
func (m *SessionManager) ActiveContexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// Shutdown tears down every context. Further opens fail.
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	all := make([]*streamContext, 0, len(m.contexts))
	for _, sc := range m.contexts {
		all = append(all, sc)
	}
	m.mu.Unlock()

	for _, sc := range all {
		_ = sc.do(ctx, func() { sc.teardown("shutdown", nil) })
	}
	m.cancel()
}

// prepare resolves missing instrument ids and derives reference ids.
// Instruments that cannot be resolved are logged and skipped.
func (m *SessionManager) prepare(ctx context.Context, token, user string, instruments []models.Instrument) []models.Subscription {
	subs := make([]models.Subscription, 0, len(instruments))
	for _, inst := range instruments {
		if inst.Symbol == "" {
			if inst.Code == "" || m.resolver == nil {
				continue
			}
			resolved, err := m.resolver.Resolve(ctx, token, inst.Code, inst.Type)
			if err != nil {
				m.logger.Warn("failed to resolve instrument", logger.String("code", inst.Code), logger.Error(err))
				m.recordError("resolve")
				continue
			}
			inst.Symbol, inst.Type = resolved.Symbol, resolved.Type
		}
		subs = append(subs, models.Subscription{
			ReferenceID: saxo.ReferenceID(user, inst.Type, inst.Symbol),
			Instrument:  inst,
		})
	}
	return subs
}

func (m *SessionManager) acquire(user string) (*streamContext, error) {
	id := saxo.ContextID(user)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("%w: session manager stopped", models.ErrUpstreamUnavailable)
	}
	if sc, ok := m.contexts[id]; ok {
		return sc, nil
	}
	sc := newStreamContext(m, id, user)
	m.contexts[id] = sc
	m.setActive()
	go sc.run()
	return sc, nil
}

func (m *SessionManager) lookup(id string) *streamContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contexts[id]
}

func (m *SessionManager) remove(sc *streamContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contexts[sc.id] == sc {
		delete(m.contexts, sc.id)
		m.setActive()
	}
}

// setActive must be called with mu held.
func (m *SessionManager) setActive() {
	if m.metrics != nil {
		m.metrics.SetActiveContexts(len(m.contexts))
	}
}

func (m *SessionManager) recordError(kind string) {
	if m.metrics != nil {
		m.metrics.RecordError(kind)
	}
}

// Stream is one downstream listener on a context.
type Stream struct {
	ContextID string
	lines     chan []byte
	sc        *streamContext
	once      sync.Once
}

// Lines yields JSON records without trailing newline. It is closed when
// the context ends or the stream is closed.
func (s *Stream) Lines() <-chan []byte { return s.lines }

// Close detaches the listener. Subscriptions stay active.
func (s *Stream) Close() {
	s.once.Do(func() {
		_ = s.sc.do(context.Background(), func() { s.sc.detach(s) })
	})
}

type contextState int

const (
	stateConnecting contextState = iota
	stateOpen
	stateClosing
	stateAbsent
)

// streamContext is a single actor: every field below is owned by the
// goroutine running run.
type streamContext struct {
	id   string
	user string
	m    *SessionManager
	log  *logger.Logger

	cmds chan func()
	done chan struct{}

	state     contextState
	conn      drepo.StreamConn
	packets   <-chan []byte
	errs      <-chan error
	closeErr  error
	subs      map[string]models.Subscription
	listeners map[*Stream]struct{}
}

func newStreamContext(m *SessionManager, id, user string) *streamContext {
	return &streamContext{
		id:        id,
		user:      user,
		m:         m,
		log:       m.logger.With(logger.String("context_id", id), logger.String("user", user)),
		cmds:      make(chan func()),
		done:      make(chan struct{}),
		state:     stateConnecting,
		subs:      make(map[string]models.Subscription),
		listeners: make(map[*Stream]struct{}),
	}
}

// do runs fn on the actor and waits for it. It fails with errContextGone
// when the context has already been torn down.
func (sc *streamContext) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case sc.cmds <- func() { defer close(finished); fn() }:
	case <-sc.done:
		return errContextGone
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (sc *streamContext) run() {
	for sc.state != stateAbsent {
		select {
		case fn := <-sc.cmds:
			fn()
		case pkt, ok := <-sc.packets:
			if !ok {
				sc.teardown("upstream closed", sc.closeErr)
				continue
			}
			sc.handlePacket(pkt)
		case err, ok := <-sc.errs:
			sc.errs = nil
			if ok {
				sc.closeErr = err
			}
		}
	}
}

func (sc *streamContext) open(ctx context.Context, token string, subs []models.Subscription) (*Stream, error) {
	if sc.state == stateConnecting {
		conn, err := sc.m.transport.Open(ctx, sc.m.api.StreamURL(token, sc.id))
		if err != nil {
			sc.m.recordError("stream_connect")
			sc.teardown("connect failed", err)
			return nil, fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
		}
		sc.conn = conn
		sc.packets, sc.errs = conn.Read(sc.m.runCtx)
		sc.state = stateOpen
		sc.log.Info("streaming connected")
	}

	for _, sub := range subs {
		if _, ok := sc.subs[sub.ReferenceID]; ok {
			continue
		}
		if err := sc.m.api.Subscribe(ctx, token, sc.id, sub.ReferenceID, sub.Instrument); err != nil {
			sc.log.Warn("subscribe failed", logger.String("symbol", sub.Instrument.Symbol), logger.Error(err))
			sc.m.recordError("subscribe")
			continue
		}
		sc.subs[sub.ReferenceID] = sub
		sc.log.Info("subscribed",
			logger.String("symbol", sub.Instrument.Symbol),
			logger.String("code", sub.Instrument.Code),
			logger.String("reference_id", sub.ReferenceID))
	}

	if len(sc.subs) == 0 {
		sc.teardown("no subscriptions", nil)
		return nil, fmt.Errorf("%w: no subscription accepted", models.ErrUpstreamUnavailable)
	}

	st := &Stream{ContextID: sc.id, lines: make(chan []byte, sc.m.bufSize), sc: sc}
	sc.listeners[st] = struct{}{}
	return st, nil
}

func (sc *streamContext) close(ctx context.Context, token string, subs []models.Subscription) CloseResult {
	removed := 0
	for _, sub := range subs {
		if _, ok := sc.subs[sub.ReferenceID]; !ok {
			continue
		}
		delete(sc.subs, sub.ReferenceID)
		removed++
		if err := sc.m.api.Unsubscribe(ctx, token, sc.id, sub.ReferenceID); err != nil {
			sc.log.Warn("unsubscribe failed", logger.String("reference_id", sub.ReferenceID), logger.Error(err))
			sc.m.recordError("unsubscribe")
			continue
		}
		sc.log.Info("unsubscribed", logger.String("symbol", sub.Instrument.Symbol))
	}
	if len(sc.subs) == 0 {
		sc.teardown("closed by client", nil)
		return CloseClosed
	}
	if removed == 0 {
		return CloseNothingRemoved
	}
	return CloseUnsubscribed
}

func (sc *streamContext) detach(s *Stream) {
	if _, ok := sc.listeners[s]; ok {
		delete(sc.listeners, s)
		close(s.lines)
	}
}

func (sc *streamContext) teardown(reason string, err error) {
	if sc.state == stateAbsent {
		return
	}
	sc.state = stateClosing
	if sc.conn != nil {
		_ = sc.conn.Close()
	}
	for s := range sc.listeners {
		close(s.lines)
	}
	sc.listeners = nil
	sc.subs = nil
	sc.state = stateAbsent
	sc.m.remove(sc)
	close(sc.done)

	if err != nil {
		sc.log.Warn("streaming context closed", logger.String("reason", reason), logger.Error(err))
		return
	}
	sc.log.Info("streaming context closed", logger.String("reason", reason))
}

var heartbeatLine, _ = json.Marshal(models.NewHeartbeat())

func (sc *streamContext) handlePacket(pkt []byte) {
	msgs, err := sc.m.decoder.Decode(pkt)
	if err != nil {
		sc.log.Warn("packet decode failed", logger.Int("decoded", len(msgs)), logger.Error(err))
	}
	for _, msg := range msgs {
		ctrl := normalizer.Classify(msg.ReferenceID)
		switch {
		case ctrl == normalizer.ControlHeartbeat:
			sc.broadcast(heartbeatLine)
		case ctrl.Teardown():
			sc.teardown(ctrl.String(), nil)
			return
		default:
			sc.dispatch(msg)
		}
	}
}

func (sc *streamContext) dispatch(msg models.UpstreamMessage) {
	sub, ok := sc.subs[msg.ReferenceID]
	if !ok {
		sc.log.Debug("dropping message for unknown subscription",
			logger.String("reference_id", msg.ReferenceID),
			logger.Error(models.ErrUnknownSubscription))
		sc.m.recordError("unknown_subscription")
		return
	}
	ticks, err := sc.m.normalizer.Normalize(msg, sub.Instrument.Code)
	if err != nil {
		sc.log.Warn("dropping undecodable price update", logger.Error(err))
		sc.m.recordError("normalize")
		return
	}
	for _, t := range ticks {
		line, err := json.Marshal(t)
		if err != nil {
			sc.m.recordError("encode")
			continue
		}
		sc.broadcast(line)
		if sc.m.metrics != nil {
			sc.m.metrics.RecordTick(string(t.Kind))
		}
		if sc.m.sink != nil {
			sc.m.sink.Offer(t)
		}
	}
}

func (sc *streamContext) broadcast(line []byte) {
	for s := range sc.listeners {
		select {
		case s.lines <- line:
		default:
			sc.m.recordError("listener_drop")
		}
	}
}
