package motilal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/telemetry"
)

const (
	wsMaxReconnectInterval = 30 * time.Second
	wsMaxReconnectAttempts = 5
	wsWriteTimeout         = 5 * time.Second
	wsReadLimit            = 64 * 1024
	wsConnectTimeout       = 10 * time.Second
)

type frameHandler func(Frame, time.Time)

// wsManager owns the binary feed connection: login after dial, read loop,
// reconnect with exponential backoff capped at 30s and at most 5
// consecutive failed attempts, then resubscribe of every tracked scrip.
type wsManager struct {
	url   string
	login func() ([]byte, error)

	ctx    context.Context
	cancel context.CancelFunc

	conn   *websocket.Conn
	connMu sync.RWMutex

	subsMu        sync.Mutex
	subscriptions map[string]struct{}

	handler frameHandler
	metrics *telemetry.Instruments
	logger  *log.Logger

	ready     chan struct{}
	readyOnce sync.Once
	errorChan chan<- error
	// fatal receives the connectLoop's terminal error exactly once; the
	// feed is dead after that.
	fatal chan error
}

func newWSManager(ctx context.Context, url string, login func() ([]byte, error), handler frameHandler, metrics *telemetry.Instruments, logger *log.Logger, errCh chan<- error) *wsManager {
	managerCtx, cancel := context.WithCancel(ctx)
	return &wsManager{
		url:           url,
		login:         login,
		ctx:           managerCtx,
		cancel:        cancel,
		subscriptions: make(map[string]struct{}),
		handler:       handler,
		metrics:       metrics,
		logger:        logger,
		ready:         make(chan struct{}),
		errorChan:     errCh,
		fatal:         make(chan error, 1),
	}
}

func (sm *wsManager) start() error {
	go func() {
		if err := sm.connectLoop(); err != nil && !errors.Is(err, context.Canceled) {
			sm.fatal <- err
		}
	}()

	select {
	case <-sm.ready:
		return nil
	case err := <-sm.fatal:
		return fmt.Errorf("motilal feed: %w", err)
	case <-time.After(wsConnectTimeout):
		return errors.New("timeout waiting for motilal feed connection")
	case <-sm.ctx.Done():
		return fmt.Errorf("motilal feed context done: %w", sm.ctx.Err())
	}
}

// failed yields the terminal connect-loop error once the reconnect budget
// is exhausted.
func (sm *wsManager) failed() <-chan error { return sm.fatal }

func (sm *wsManager) stop() {
	sm.cancel()
	sm.connMu.Lock()
	if sm.conn != nil {
		_ = sm.conn.Close(websocket.StatusNormalClosure, "shutdown")
		sm.conn = nil
	}
	sm.connMu.Unlock()
}

func (sm *wsManager) subscribe(subjects []string) error {
	added := make([]string, 0, len(subjects))
	sm.subsMu.Lock()
	for _, subject := range subjects {
		if _, exists := sm.subscriptions[subject]; !exists {
			sm.subscriptions[subject] = struct{}{}
			added = append(added, subject)
		}
	}
	sm.subsMu.Unlock()
	return sm.sendControl(added, EncodeSubscribe)
}

func (sm *wsManager) unsubscribe(subjects []string) error {
	removed := make([]string, 0, len(subjects))
	sm.subsMu.Lock()
	for _, subject := range subjects {
		if _, exists := sm.subscriptions[subject]; exists {
			delete(sm.subscriptions, subject)
			removed = append(removed, subject)
		}
	}
	sm.subsMu.Unlock()
	return sm.sendControl(removed, EncodeUnsubscribe)
}

func (sm *wsManager) sendControl(subjects []string, encode func(schema.Exchange, uint32) ([]byte, error)) error {
	if len(subjects) == 0 {
		return nil
	}
	sm.connMu.RLock()
	conn := sm.conn
	sm.connMu.RUnlock()
	if conn == nil {
		// Connection down: the tracked set is replayed on reconnect.
		return nil
	}
	for _, subject := range subjects {
		frame, err := encodeSubjectFrame(subject, encode)
		if err != nil {
			return err
		}
		writeCtx, cancel := context.WithTimeout(sm.ctx, wsWriteTimeout)
		err = conn.Write(writeCtx, websocket.MessageBinary, frame)
		cancel()
		if err != nil {
			return fmt.Errorf("write control frame for %s: %w", subject, err)
		}
	}
	return nil
}

func encodeSubjectFrame(subject string, encode func(schema.Exchange, uint32) ([]byte, error)) ([]byte, error) {
	exchange, token, err := schema.SplitSubject(subject)
	if err != nil {
		return nil, err
	}
	scrip, err := strconv.ParseUint(token, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse scrip token %q: %w", token, err)
	}
	return encode(exchange, uint32(scrip))
}

func (sm *wsManager) connectLoop() error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = wsMaxReconnectInterval
	attempts := 0

	for {
		select {
		case <-sm.ctx.Done():
			return context.Canceled
		default:
		}

		conn, _, err := websocket.Dial(sm.ctx, sm.url, nil)
		if err != nil {
			attempts++
			sm.reportError(fmt.Errorf("dial %s (attempt %d/%d): %w", sm.url, attempts, wsMaxReconnectAttempts, err))
			if attempts >= wsMaxReconnectAttempts {
				return fmt.Errorf("feed unreachable after %d attempts: %w", attempts, err)
			}
			sm.metrics.WSReconnect(sm.ctx, brokerName)
			if sleepErr := sm.sleep(backoffCfg.NextBackOff()); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		conn.SetReadLimit(wsReadLimit)

		if err := sm.authenticate(conn); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "login failed")
			attempts++
			sm.reportError(fmt.Errorf("feed login: %w", err))
			if attempts >= wsMaxReconnectAttempts {
				return fmt.Errorf("feed login failed after %d attempts: %w", attempts, err)
			}
			if sleepErr := sm.sleep(backoffCfg.NextBackOff()); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		sm.connMu.Lock()
		sm.conn = conn
		sm.connMu.Unlock()

		attempts = 0
		backoffCfg.Reset()
		sm.readyOnce.Do(func() { close(sm.ready) })

		if err := sm.resubscribeAll(); err != nil {
			sm.reportError(fmt.Errorf("resubscribe after reconnect: %w", err))
		}

		err = sm.readLoop(conn)

		sm.connMu.Lock()
		if sm.conn == conn {
			sm.conn = nil
		}
		sm.connMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")

		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		if err != nil {
			sm.reportError(fmt.Errorf("feed connection dropped: %w", err))
		}
		sm.metrics.WSReconnect(sm.ctx, brokerName)
		if sleepErr := sm.sleep(backoffCfg.NextBackOff()); sleepErr != nil {
			return sleepErr
		}
	}
}

func (sm *wsManager) authenticate(conn *websocket.Conn) error {
	frame, err := sm.login()
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(sm.ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageBinary, frame)
}

func (sm *wsManager) resubscribeAll() error {
	sm.subsMu.Lock()
	subjects := make([]string, 0, len(sm.subscriptions))
	for subject := range sm.subscriptions {
		subjects = append(subjects, subject)
	}
	sm.subsMu.Unlock()
	if len(subjects) > 0 && sm.logger != nil {
		sm.logger.Printf("motilal feed: resubscribing %d scrips", len(subjects))
	}
	return sm.sendControl(subjects, EncodeSubscribe)
}

func (sm *wsManager) readLoop(conn *websocket.Conn) error {
	for {
		select {
		case <-sm.ctx.Done():
			return context.Canceled
		default:
		}
		_, data, err := conn.Read(sm.ctx)
		if err != nil {
			if sm.ctx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("read feed: %w", err)
		}
		// The feed concatenates whole frames into one websocket message.
		for len(data) >= FrameSize {
			frame, err := Decode(data[:FrameSize])
			data = data[FrameSize:]
			if err != nil {
				sm.reportError(fmt.Errorf("decode frame: %w", err))
				continue
			}
			sm.metrics.TickDecoded(sm.ctx, brokerName)
			if sm.handler != nil && frame.Tag != TagHeartbeat {
				sm.handler(frame, time.Now())
			}
		}
		if len(data) > 0 {
			sm.reportError(fmt.Errorf("truncated frame: %d trailing bytes", len(data)))
		}
	}
}

func (sm *wsManager) sleep(d time.Duration) error {
	if d == backoff.Stop || d <= 0 {
		d = wsMaxReconnectInterval
	}
	select {
	case <-sm.ctx.Done():
		return context.Canceled
	case <-time.After(d):
		return nil
	}
}

func (sm *wsManager) reportError(err error) {
	if err == nil {
		return
	}
	select {
	case <-sm.ctx.Done():
	case sm.errorChan <- err:
	default:
	}
}
