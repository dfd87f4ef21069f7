package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LoginResult es la respuesta del endpoint de login.
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
	UserID    string `json:"userId"`
}

// Authenticator intercambia credenciales por un token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
}

// Timer es la acción diferida de expiración.
type Timer interface {
	Stop() bool
}

// AfterFunc programa f tras d; time.AfterFunc en producción.
type AfterFunc func(d time.Duration, f func()) Timer

var ErrInvalidLoginResult = errors.New("invalid login result")

// SessionManager es el único dueño del token del cliente. Estados: sin sesión,
// o con sesión (token, expiresAt). Cada transición notifica a los observadores
// una vez, en orden y de forma síncrona.
type SessionManager struct {
	auth      Authenticator
	storage   Storage
	logger    *zap.Logger
	now       func() time.Time
	afterFunc AfterFunc

	// storeMu ordena las escrituras en storage junto con la transición que
	// reflejan. Se toma antes que mu.
	storeMu sync.Mutex

	mu        sync.Mutex
	token     string
	userID    string
	expiresAt time.Time
	timer     Timer
	gen       uint64

	// seq numera las transiciones bajo mu; deliver las entrega en ese orden.
	seq uint64

	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	delivered  uint64
	published  bool
	observers  map[uint64]func(bool)
	nextObsID  uint64
}

type SessionOption func(*SessionManager)

func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionManager) { s.now = now }
}

func WithAfterFunc(f AfterFunc) SessionOption {
	return func(s *SessionManager) { s.afterFunc = f }
}

func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *SessionManager) { s.logger = logger }
}

func NewSessionManager(auth Authenticator, storage Storage, opts ...SessionOption) *SessionManager {
	s := &SessionManager{
		auth:    auth,
		storage: storage,
		logger:  zap.NewNop(),
		now:     time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		observers: make(map[uint64]func(bool)),
	}
	s.notifyCond = sync.NewCond(&s.notifyMu)
	for _, opt := range opts {
		opt(s)
	}
	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}
	return s
}

// Login autentica contra el servidor y, si tiene éxito, guarda la sesión y
// programa su expiración. Un login previo queda reemplazado.
func (s *SessionManager) Login(ctx context.Context, email, password string) error {
	if s.auth == nil {
		return errors.New("authenticator not configured")
	}
	res, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if res.Token == "" || res.UserID == "" || res.ExpiresIn <= 0 {
		return ErrInvalidLoginResult
	}

	expiresAt := s.now().Add(time.Duration(res.ExpiresIn) * time.Second).Truncate(time.Second)
	stored := StoredSession{Token: res.Token, ExpiresAt: expiresAt, UserID: res.UserID}

	s.storeMu.Lock()
	if err := s.storage.Save(ctx, stored); err != nil {
		s.storeMu.Unlock()
		return err
	}
	s.mu.Lock()
	s.enterLoggedIn(stored)
	seq := s.nextSeq()
	s.mu.Unlock()
	s.storeMu.Unlock()

	s.deliver(seq, true)
	return nil
}

// Restore recupera la sesión guardada al arrancar. Si sigue vigente programa la
// expiración por el tiempo restante; si no, limpia el almacenamiento.
func (s *SessionManager) Restore(ctx context.Context) (bool, error) {
	s.storeMu.Lock()
	stored, err := s.storage.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrCorruptSession) {
		s.storeMu.Unlock()
		return false, err
	}
	if err != nil || !stored.ExpiresAt.After(s.now()) {
		if errors.Is(err, ErrCorruptSession) {
			s.logger.Warn("discarding corrupt stored session", zap.Error(err))
		}
		clearErr := s.storage.Clear(ctx)
		s.storeMu.Unlock()
		return false, clearErr
	}
	s.mu.Lock()
	s.enterLoggedIn(stored)
	seq := s.nextSeq()
	s.mu.Unlock()
	s.storeMu.Unlock()

	s.deliver(seq, true)
	return true, nil
}

// Logout cancela la expiración pendiente, limpia el almacenamiento y cierra la sesión.
func (s *SessionManager) Logout(ctx context.Context) error {
	s.storeMu.Lock()
	clearErr := s.storage.Clear(ctx)
	s.mu.Lock()
	if !s.loggedIn() {
		s.mu.Unlock()
		s.storeMu.Unlock()
		return clearErr
	}
	s.enterLoggedOut()
	seq := s.nextSeq()
	s.mu.Unlock()
	s.storeMu.Unlock()

	s.deliver(seq, false)
	return clearErr
}

// Subscribe registra fn, le entrega el estado actual y después cada transición.
// fn corre con las notificaciones bloqueadas: no debe llamar a Login, Restore,
// Logout ni a la baja. La función devuelta da de baja.
func (s *SessionManager) Subscribe(fn func(authenticated bool)) func() {
	s.notifyMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	fn(s.published)
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.observers, id)
		s.notifyMu.Unlock()
	}
}

func (s *SessionManager) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *SessionManager) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *SessionManager) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *SessionManager) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn()
}

// expire corre desde el timer; si la sesión cambió desde que se programó no hace nada.
// El borrado en storage ocurre bajo storeMu, así que un Login posterior no puede
// quedar pisado por él.
func (s *SessionManager) expire(gen uint64) {
	s.storeMu.Lock()
	s.mu.Lock()
	if gen != s.gen || !s.loggedIn() {
		s.mu.Unlock()
		s.storeMu.Unlock()
		return
	}
	s.enterLoggedOut()
	seq := s.nextSeq()
	s.mu.Unlock()
	if err := s.storage.Clear(context.Background()); err != nil {
		s.logger.Warn("clear expired session failed", zap.Error(err))
	}
	s.storeMu.Unlock()

	s.deliver(seq, false)
}

func (s *SessionManager) loggedIn() bool {
	return s.token != ""
}

// enterLoggedIn requiere mu tomado.
func (s *SessionManager) enterLoggedIn(stored StoredSession) {
	s.stopTimer()
	s.gen++
	gen := s.gen
	s.token = stored.Token
	s.userID = stored.UserID
	s.expiresAt = stored.ExpiresAt
	s.timer = s.afterFunc(stored.ExpiresAt.Sub(s.now()), func() { s.expire(gen) })
}

// enterLoggedOut requiere mu tomado.
func (s *SessionManager) enterLoggedOut() {
	s.stopTimer()
	s.gen++
	s.token = ""
	s.userID = ""
	s.expiresAt = time.Time{}
}

func (s *SessionManager) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// nextSeq requiere mu tomado.
func (s *SessionManager) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// deliver notifica la transición seq cuando ya se entregaron todas las anteriores.
func (s *SessionManager) deliver(seq uint64, authenticated bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for s.delivered != seq-1 {
		s.notifyCond.Wait()
	}
	s.published = authenticated
	for id := uint64(0); id < s.nextObsID; id++ {
		if fn, ok := s.observers[id]; ok {
			fn(authenticated)
		}
	}
	s.delivered = seq
	s.notifyCond.Broadcast()
}
