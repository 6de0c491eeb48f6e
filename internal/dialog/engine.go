package dialog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/perioplabs/periopbot/internal/observability/metrics"
	"github.com/perioplabs/periopbot/pkg/logging"
)

const defaultMaxSlots = 8

// User identifies the person behind an inbound event.
type User struct {
	ID       int64
	Username string
}

// Engine drives one session per user through the eligibility questionnaire
// and the scheduling form, and runs the slot reservation protocol at the
// end. Events for the same user are processed strictly one at a time; users
// never contend with each other.
type Engine struct {
	slots   SlotSource
	audit   AuditLog
	store   SessionStore
	logger  *logging.Logger
	metrics *metrics.BotMetrics

	loc      *time.Location
	maxSlots int
	now      func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the time source used for date validation and audit
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the clinic timezone used to compute "today".
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithMaxSlots caps how many open slots one listing presents.
func WithMaxSlots(max int) Option {
	return func(e *Engine) {
		if max > 0 {
			e.maxSlots = max
		}
	}
}

// WithMetrics attaches booking instrumentation.
func WithMetrics(m *metrics.BotMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New wires an engine around its collaborators.
func New(slots SlotSource, audit AuditLog, store SessionStore, logger *logging.Logger, opts ...Option) *Engine {
	if slots == nil {
		panic("dialog: slot source cannot be nil")
	}
	if audit == nil {
		panic("dialog: audit log cannot be nil")
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		slots:    slots,
		audit:    audit,
		store:    store,
		logger:   logger,
		loc:      time.UTC,
		maxSlots: defaultMaxSlots,
		now:      time.Now,
		locks:    make(map[int64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start resets the user's session and presents the main menu.
func (e *Engine) Start(ctx context.Context, user User) ([]Reply, error) {
	unlock := e.lockUser(user.ID)
	defer unlock()

	s, err := e.session(ctx, user)
	if err != nil {
		return nil, err
	}
	s.Reset()
	if err := e.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return []Reply{newReply(msgMainMenu, mainMenuKeyboard())}, nil
}

// HandleCallback processes one button press. Malformed payloads come back as
// a restart hint, never an error that would crash the transport.
func (e *Engine) HandleCallback(ctx context.Context, user User, payload string) ([]Reply, error) {
	event, err := ParseCallback(payload)
	if err != nil {
		e.logger.Warn("discarding unparseable callback", "user_id", user.ID, "payload", payload)
		return []Reply{newReply(msgRestartHint, nil)}, nil
	}

	unlock := e.lockUser(user.ID)
	defer unlock()

	s, err := e.session(ctx, user)
	if err != nil {
		return nil, err
	}

	var replies []Reply
	switch ev := event.(type) {
	case MenuEvent:
		replies = e.onMenu(s, ev)
	case EligAnswerEvent:
		replies = e.onEligAnswer(s, ev)
	case ConfirmEvent:
		replies, err = e.onConfirm(ctx, s, ev)
	case SlotChoiceEvent:
		replies, err = e.onSlotChoice(ctx, s, ev)
	}
	if err != nil {
		return nil, err
	}
	if saveErr := e.store.Save(ctx, s); saveErr != nil {
		return nil, saveErr
	}
	return replies, nil
}

// HandleText processes one free-text message.
func (e *Engine) HandleText(ctx context.Context, user User, text string) ([]Reply, error) {
	unlock := e.lockUser(user.ID)
	defer unlock()

	s, err := e.session(ctx, user)
	if err != nil {
		return nil, err
	}
	replies := e.onText(s, text)
	if saveErr := e.store.Save(ctx, s); saveErr != nil {
		return nil, saveErr
	}
	return replies, nil
}

func (e *Engine) onMenu(s *Session, ev MenuEvent) []Reply {
	s.Reset()
	if ev.Scheduling {
		// Direct scheduling never asks eligibility questions.
		s.Mode = ModeScheduling
		s.Eligible = EligibleYes
		s.Criterion = CriterionDirect
		return []Reply{editReply(msgSchedHeader+"\n\n"+SchedFields[0].Prompt, nil)}
	}
	s.Mode = ModeEligibility
	q := EligQuestions[0]
	return []Reply{editReply(msgEligHeader+"\n\n"+q.Prompt, yesNoKeyboard(q.Key))}
}

func (e *Engine) onEligAnswer(s *Session, ev EligAnswerEvent) []Reply {
	if s.Mode != ModeEligibility || s.EligStep >= len(EligQuestions) ||
		EligQuestions[s.EligStep].Key != ev.Key {
		// Stale button from an earlier prompt.
		return []Reply{newReply(msgRestartHint, nil)}
	}

	if ev.Yes {
		s.Eligible = EligibleYes
		s.Criterion = ev.Key
		s.Mode = ModeScheduling
		s.SchedStep = 0
		s.Answers = make(map[string]string)
		text := fmt.Sprintf(msgEligiblePositive, ev.Key, msgSchedHeader, SchedFields[0].Prompt)
		return []Reply{editReply(text, nil)}
	}

	s.EligStep++
	if s.EligStep >= len(EligQuestions) {
		e.logger.Info("eligibility exhausted without positive criterion", "user_id", s.UserID)
		s.Reset()
		s.Eligible = EligibleNo
		s.Criterion = CriterionNone
		return []Reply{
			editReply(msgNotEligible, nil),
			newReply(msgMenuShort, mainMenuKeyboard()),
		}
	}
	q := EligQuestions[s.EligStep]
	return []Reply{editReply(msgEligHeader+"\n\n"+q.Prompt, yesNoKeyboard(q.Key))}
}

func (e *Engine) onText(s *Session, text string) []Reply {
	if s.Mode != ModeScheduling {
		return []Reply{newReply(msgRestartHint, nil)}
	}
	if s.SchedStep >= len(SchedFields) {
		return []Reply{newReply(msgUseConfirmKeys, confirmKeyboard())}
	}

	field := SchedFields[s.SchedStep]
	value := strings.TrimSpace(text)
	if value == "" {
		return []Reply{newReply(msgRetryInput+"\n\n"+field.Prompt, nil)}
	}
	if field.Key == ExpectedDateField {
		if parsed, ok := ParseExpectedDate(value, e.loc); ok && beforeToday(parsed, e.now().In(e.loc)) {
			return []Reply{newReply(msgPastDate+"\n\n"+field.Prompt, nil)}
		}
		// Unparseable text is an accepted free-form estimate.
	}

	s.Answers[field.Key] = value
	s.SchedStep++
	if s.SchedStep >= len(SchedFields) {
		return []Reply{newReply(renderSummary(s.Answers), confirmKeyboard())}
	}
	return []Reply{newReply(SchedFields[s.SchedStep].Prompt, nil)}
}

func (e *Engine) onConfirm(ctx context.Context, s *Session, ev ConfirmEvent) ([]Reply, error) {
	if s.Mode != ModeScheduling || s.SchedStep < len(SchedFields) {
		return []Reply{newReply(msgRestartHint, nil)}, nil
	}

	if !ev.Confirmed {
		s.Reset()
		e.metrics.ObserveBooking("cancelled")
		return []Reply{
			editReply(msgCancelled, nil),
			newReply(msgMenuShort, mainMenuKeyboard()),
		}, nil
	}

	// Freeze the cell text now; later edits to answers must not leak in.
	s.BookingText = renderBookingText(s.Answers)

	open, err := e.slots.ListOpenSlots(ctx, e.maxSlots)
	if err != nil {
		e.logger.Error("listing open slots failed", "user_id", s.UserID, "error", err)
		e.metrics.ObserveBooking("error")
		s.Reset()
		return []Reply{
			editReply(msgSheetError, nil),
			newReply(msgMenuShort, mainMenuKeyboard()),
		}, nil
	}
	if len(open) == 0 {
		e.metrics.ObserveBooking("no_slots")
		s.Reset()
		return []Reply{
			editReply(msgNoSlots, nil),
			newReply(msgMenuShort, mainMenuKeyboard()),
		}, nil
	}

	s.CachedSlots = open
	return []Reply{editReply(msgChooseSlot, slotKeyboard(open))}, nil
}

func (e *Engine) onSlotChoice(ctx context.Context, s *Session, ev SlotChoiceEvent) ([]Reply, error) {
	if s.Mode != ModeScheduling || s.BookingText == "" || len(s.CachedSlots) == 0 {
		return []Reply{newReply(msgRestartHint, nil)}, nil
	}

	if ev.Cancel {
		s.Reset()
		e.metrics.ObserveBooking("cancelled")
		return []Reply{
			editReply(msgCancelled, nil),
			newReply(msgMenuShort, mainMenuKeyboard()),
		}, nil
	}

	booked, err := e.slots.TryBook(ctx, ev.Row, ev.Col, s.BookingText)
	if err != nil {
		e.logger.Error("booking call failed", "user_id", s.UserID, "row", ev.Row, "col", ev.Col, "error", err)
		e.metrics.ObserveBooking("error")
		s.Reset()
		return []Reply{
			editReply(msgSheetError, nil),
			newReply(msgMenuShort, mainMenuKeyboard()),
		}, nil
	}
	if !booked {
		// Lost the race. The cached listing is stale now, but the user can
		// still pick a different slot or cancel.
		e.metrics.ObserveBooking("conflict")
		return []Reply{newReply(msgSlotTaken, slotKeyboard(s.CachedSlots))}, nil
	}

	e.metrics.ObserveBooking("booked")
	rec := e.buildAuditRecord(s, ev.Row, ev.Col)
	replies := []Reply{editReply(msgBooked, nil)}
	if err := e.audit.Append(ctx, rec); err != nil {
		// The booking is the authoritative action; the log is best-effort.
		e.logger.Error("audit append failed after booking", "user_id", s.UserID, "error", err)
		replies = []Reply{editReply(msgAuditError, nil)}
	}
	s.Reset()
	replies = append(replies, newReply(msgMenuShort, mainMenuKeyboard()))
	return replies, nil
}

func (e *Engine) buildAuditRecord(s *Session, row, col int) AuditRecord {
	path := PathEligibility
	if s.Criterion == CriterionDirect {
		path = PathDirect
	}
	criterion := s.Criterion
	if criterion == "" {
		criterion = CriterionNone
	}
	eligible := s.Eligible
	if eligible == EligibleUnset {
		eligible = EligibleYes
	}
	return AuditRecord{
		Timestamp:    e.now().In(e.loc).Format(time.RFC3339),
		Path:         path,
		Eligible:     eligible,
		Criterion:    criterion,
		PatientName:  s.Answers["nome_paciente"],
		RecordNumber: s.Answers["prontuario"],
		Surgeon:      s.Answers["nome_cirurgiao"],
		Surgery:      s.Answers["cirurgia_proposta"],
		ExpectedDate: s.Answers[ExpectedDateField],
		Notes:        s.Answers["observacoes"],
		SlotLabel:    e.slotLabel(s, row, col),
		UserID:       strconv.FormatInt(s.UserID, 10),
		Username:     s.Username,
	}
}

// slotLabel resolves the booked slot's label from the cached listing.
func (e *Engine) slotLabel(s *Session, row, col int) string {
	for _, slot := range s.CachedSlots {
		if slot.Row == row && slot.Col == col {
			return slot.Label
		}
	}
	return fmt.Sprintf("linha %d, coluna %d", row, col)
}

func (e *Engine) session(ctx context.Context, user User) (*Session, error) {
	s, err := e.store.Load(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = NewSession(user.ID, user.Username)
	}
	if user.Username != "" {
		s.Username = user.Username
	}
	return s, nil
}

// lockUser serializes event handling per user.
func (e *Engine) lockUser(userID int64) func() {
	e.mu.Lock()
	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}
	e.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
