package dialog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perioplabs/periopbot/pkg/logging"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type stubSlots struct {
	mu      sync.Mutex
	open    []Slot
	listErr error
	bookErr error
	cells   map[string]string
}

func newStubSlots(open ...Slot) *stubSlots {
	return &stubSlots{open: open, cells: make(map[string]string)}
}

func (s *stubSlots) ListOpenSlots(_ context.Context, max int) ([]Slot, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.open) > max {
		return s.open[:max], nil
	}
	return s.open, nil
}

func (s *stubSlots) TryBook(_ context.Context, row, col int, text string) (bool, error) {
	if s.bookErr != nil {
		return false, s.bookErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d:%d", row, col)
	if s.cells[key] != "" {
		return false, nil
	}
	s.cells[key] = text
	return true, nil
}

type stubAudit struct {
	mu      sync.Mutex
	records []AuditRecord
	err     error
}

func (a *stubAudit) Append(_ context.Context, rec AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

func newTestEngine(t *testing.T, slots *stubSlots, audit *stubAudit, opts ...Option) *Engine {
	t.Helper()
	if slots == nil {
		slots = newStubSlots()
	}
	if audit == nil {
		audit = &stubAudit{}
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(slots, audit, NewMemorySessionStore(), logging.New("error"), opts...)
}

func loadSession(t *testing.T, e *Engine, userID int64) *Session {
	t.Helper()
	s, err := e.store.Load(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

// answerSchedField walks one free-text answer through the engine.
func answerSchedFields(t *testing.T, e *Engine, user User, answers ...string) []Reply {
	t.Helper()
	var replies []Reply
	for _, a := range answers {
		var err error
		replies, err = e.HandleText(context.Background(), user, a)
		require.NoError(t, err)
	}
	return replies
}

func TestStartPresentsMainMenu(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	replies, err := e.Start(context.Background(), User{ID: 7})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, msgMainMenu, replies[0].Text)
	require.Len(t, replies[0].Keyboard, 1)
	assert.Equal(t, "MENU:ELIG", replies[0].Keyboard[0][0].Data)
	assert.Equal(t, "MENU:SCHED", replies[0].Keyboard[0][1].Data)
}

func TestEligibilityQuestionsInFixedOrder(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()

	replies, err := e.HandleCallback(ctx, user, "MENU:ELIG")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, EligQuestions[0].Prompt)

	// Every NAO presents exactly the next question, never skipping.
	for i := 0; i < len(EligQuestions)-1; i++ {
		payload := fmt.Sprintf("ELIG:%s:NAO", EligQuestions[i].Key)
		replies, err = e.HandleCallback(ctx, user, payload)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0].Text, EligQuestions[i+1].Prompt, "step %d", i)
		assert.Empty(t, loadSession(t, e, user.ID).Criterion)
	}
}

func TestEligibilityShortCircuitOnYes(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()

	_, err := e.HandleCallback(ctx, user, "MENU:ELIG")
	require.NoError(t, err)
	_, err = e.HandleCallback(ctx, user, "ELIG:idade80:NAO")
	require.NoError(t, err)

	replies, err := e.HandleCallback(ctx, user, "ELIG:memoria:SIM")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "ELEGÍVEL")
	assert.Contains(t, replies[0].Text, "memoria")
	assert.Contains(t, replies[0].Text, SchedFields[0].Prompt)

	s := loadSession(t, e, user.ID)
	assert.Equal(t, ModeScheduling, s.Mode)
	assert.Equal(t, EligibleYes, s.Eligible)
	assert.Equal(t, "memoria", s.Criterion)
	assert.Equal(t, 0, s.SchedStep)
}

func TestEligibilityExhaustedWithoutPositive(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()

	_, err := e.HandleCallback(ctx, user, "MENU:ELIG")
	require.NoError(t, err)
	var replies []Reply
	for _, q := range EligQuestions {
		replies, err = e.HandleCallback(ctx, user, fmt.Sprintf("ELIG:%s:NAO", q.Key))
		require.NoError(t, err)
	}

	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "NÃO ELEGÍVEL")
	assert.Equal(t, msgMenuShort, replies[1].Text)
	assert.NotEmpty(t, replies[1].Keyboard)

	s := loadSession(t, e, user.ID)
	assert.Equal(t, ModeNone, s.Mode)
	assert.Equal(t, EligibleNo, s.Eligible)
	assert.Equal(t, CriterionNone, s.Criterion)
}

func TestDirectSchedulingRecordsSentinel(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}

	replies, err := e.HandleCallback(context.Background(), user, "MENU:SCHED")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, SchedFields[0].Prompt)

	s := loadSession(t, e, user.ID)
	assert.Equal(t, ModeScheduling, s.Mode)
	assert.Equal(t, EligibleYes, s.Eligible)
	assert.Equal(t, CriterionDirect, s.Criterion)
}

func TestSchedulingStoresAnswersVerbatim(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)

	replies, err := e.HandleText(ctx, user, "  Maria da Silva  ")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, SchedFields[1].Prompt, replies[0].Text)

	s := loadSession(t, e, user.ID)
	assert.Equal(t, "Maria da Silva", s.Answers["nome_paciente"])
	assert.Equal(t, 1, s.SchedStep)
}

func TestEmptyInputNeverAdvances(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)

	for _, input := range []string{"", "   ", "\n\t"} {
		replies, err := e.HandleText(ctx, user, input)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0].Text, msgRetryInput)
		assert.Contains(t, replies[0].Text, SchedFields[0].Prompt)
		assert.Equal(t, 0, loadSession(t, e, user.ID).SchedStep)
	}
}

func TestExpectedDateValidation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		advances bool
	}{
		{"past date rejected", "01/01/2020", false},
		{"yesterday rejected", "09/03/2026", false},
		{"today accepted", "10/03/2026", true},
		{"future date accepted", "15/04/2026", true},
		{"future month-year accepted", "abril 2026", true},
		{"free-form estimate accepted", "meados do ano que vem", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil, nil)
			user := User{ID: 7}
			ctx := context.Background()
			_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
			require.NoError(t, err)
			answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia")

			replies, err := e.HandleText(ctx, user, tt.input)
			require.NoError(t, err)
			s := loadSession(t, e, user.ID)
			if tt.advances {
				assert.Equal(t, 5, s.SchedStep)
				assert.Equal(t, tt.input, s.Answers[ExpectedDateField])
			} else {
				assert.Equal(t, 4, s.SchedStep)
				assert.Contains(t, replies[0].Text, msgPastDate)
			}
		})
	}
}

func TestSummaryAfterLastField(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)

	replies := answerSchedFields(t, e, user,
		"Maria", "12345", "Dr. Silva", "Artroplastia de quadril", "15/04/2026", "-")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "CONFIRMAR SOLICITAÇÃO")
	assert.Contains(t, replies[0].Text, "Maria")
	assert.Contains(t, replies[0].Text, "15/04/2026")
	require.NotEmpty(t, replies[0].Keyboard)
	assert.Equal(t, "CONFIRM:SIM", replies[0].Keyboard[0][0].Data)
	assert.Equal(t, "CONFIRM:NAO", replies[0].Keyboard[0][1].Data)
}

func TestTextAfterAllFieldsRemindsButtons(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")

	replies, err := e.HandleText(ctx, user, "confirmo")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, msgUseConfirmKeys, replies[0].Text)
	assert.NotEmpty(t, replies[0].Keyboard)
	assert.Equal(t, 6, loadSession(t, e, user.ID).SchedStep)
}

func TestTextWhileIdleAsksForRestart(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	replies, err := e.HandleText(context.Background(), User{ID: 7}, "oi")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, msgRestartHint, replies[0].Text)
}

func TestMalformedCallbackIsHarmless(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	for _, payload := range []string{"", "WHAT:EVER", "SLOT:x:y", "ELIG:idade80", "CONFIRM:TALVEZ"} {
		replies, err := e.HandleCallback(context.Background(), User{ID: 7}, payload)
		require.NoError(t, err, payload)
		require.Len(t, replies, 1)
		assert.Equal(t, msgRestartHint, replies[0].Text)
	}
}

func TestStaleEligibilityButtonRejected(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:ELIG")
	require.NoError(t, err)

	// Button from a different question than the current one.
	replies, err := e.HandleCallback(ctx, user, "ELIG:fragilidade:SIM")
	require.NoError(t, err)
	assert.Equal(t, msgRestartHint, replies[0].Text)
	assert.Equal(t, 0, loadSession(t, e, user.ID).EligStep)
}

func TestConfirmCancelResetsSession(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")

	replies, err := e.HandleCallback(ctx, user, "CONFIRM:NAO")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, msgCancelled, replies[0].Text)
	assert.Equal(t, msgMenuShort, replies[1].Text)

	s := loadSession(t, e, user.ID)
	assert.Equal(t, ModeNone, s.Mode)
	assert.Empty(t, s.Answers)
	assert.Empty(t, s.BookingText)
}

func TestConfirmListsOpenSlots(t *testing.T) {
	slots := newStubSlots(
		Slot{Row: 1, Col: 1, Label: "14/04 — horário 1"},
		Slot{Row: 1, Col: 2, Label: "14/04 — horário 2"},
	)
	e := newTestEngine(t, slots, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")

	replies, err := e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, msgChooseSlot, replies[0].Text)
	require.Len(t, replies[0].Keyboard, 3) // two slots + cancel
	assert.Equal(t, "SLOT:1:1", replies[0].Keyboard[0][0].Data)
	assert.Equal(t, "SLOT:1:2", replies[0].Keyboard[1][0].Data)
	assert.Equal(t, "SLOT:CANCEL", replies[0].Keyboard[2][0].Data)

	s := loadSession(t, e, user.ID)
	assert.NotEmpty(t, s.BookingText)
	assert.Len(t, s.CachedSlots, 2)
}

func TestConfirmWithNoOpenSlots(t *testing.T) {
	e := newTestEngine(t, newStubSlots(), nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")

	replies, err := e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, msgNoSlots, replies[0].Text)
	assert.Equal(t, ModeNone, loadSession(t, e, user.ID).Mode)
}

func TestSlotConflictKeepsSessionActionable(t *testing.T) {
	slots := newStubSlots(Slot{Row: 1, Col: 1, Label: "14/04 — horário 1"})
	slots.cells["1:1"] = "someone else" // taken between listing and booking
	e := newTestEngine(t, slots, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")
	_, err = e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)

	replies, err := e.HandleCallback(ctx, user, "SLOT:1:1")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, msgSlotTaken, replies[0].Text)
	assert.NotEmpty(t, replies[0].Keyboard)

	s := loadSession(t, e, user.ID)
	assert.Equal(t, ModeScheduling, s.Mode)
	assert.NotEmpty(t, s.BookingText)
	assert.NotEmpty(t, s.CachedSlots)
}

func TestBookingSuccessAppendsOneAuditRow(t *testing.T) {
	slots := newStubSlots(Slot{Row: 3, Col: 2, Label: "21/04 — horário 2"})
	audit := &stubAudit{}
	e := newTestEngine(t, slots, audit)
	user := User{ID: 42, Username: "dra_ana"}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")
	_, err = e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)

	replies, err := e.HandleCallback(ctx, user, "SLOT:3:2")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, msgBooked, replies[0].Text)
	assert.Equal(t, msgMenuShort, replies[1].Text)

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, PathDirect, rec.Path)
	assert.Equal(t, EligibleYes, rec.Eligible)
	assert.Equal(t, CriterionDirect, rec.Criterion)
	assert.Equal(t, "Maria", rec.PatientName)
	assert.Equal(t, "12345", rec.RecordNumber)
	assert.Equal(t, "21/04 — horário 2", rec.SlotLabel)
	assert.Equal(t, "42", rec.UserID)
	assert.Equal(t, "dra_ana", rec.Username)
	assert.Equal(t, testNow.Format(time.RFC3339), rec.Timestamp)

	// The cell holds the frozen booking text.
	assert.Contains(t, slots.cells["3:2"], "Maria")

	s := loadSession(t, e, user.ID)
	assert.Equal(t, ModeNone, s.Mode)
	assert.Empty(t, s.Answers)
}

func TestBookingViaEligibilityRecordsCriterion(t *testing.T) {
	slots := newStubSlots(Slot{Row: 1, Col: 1, Label: "14/04 — horário 1"})
	audit := &stubAudit{}
	e := newTestEngine(t, slots, audit)
	user := User{ID: 7}
	ctx := context.Background()

	_, err := e.HandleCallback(ctx, user, "MENU:ELIG")
	require.NoError(t, err)
	_, err = e.HandleCallback(ctx, user, "ELIG:idade80:NAO")
	require.NoError(t, err)
	_, err = e.HandleCallback(ctx, user, "ELIG:memoria:SIM")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")
	_, err = e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)
	_, err = e.HandleCallback(ctx, user, "SLOT:1:1")
	require.NoError(t, err)

	require.Len(t, audit.records, 1)
	assert.Equal(t, PathEligibility, audit.records[0].Path)
	assert.Equal(t, "memoria", audit.records[0].Criterion)
	assert.Equal(t, EligibleYes, audit.records[0].Eligible)
}

func TestAuditFailureWarnsButStillResets(t *testing.T) {
	slots := newStubSlots(Slot{Row: 1, Col: 1, Label: "14/04 — horário 1"})
	audit := &stubAudit{err: fmt.Errorf("sheets: append audit row: transport down")}
	e := newTestEngine(t, slots, audit)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")
	_, err = e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)

	replies, err := e.HandleCallback(ctx, user, "SLOT:1:1")
	require.NoError(t, err)
	assert.Equal(t, msgAuditError, replies[0].Text)
	// The booking stands; only the log append failed.
	assert.NotEmpty(t, slots.cells["1:1"])
	assert.Equal(t, ModeNone, loadSession(t, e, user.ID).Mode)
}

func TestListFailureWarnsAndResets(t *testing.T) {
	slots := newStubSlots()
	slots.listErr = fmt.Errorf("sheets: read slot grid: transport down")
	e := newTestEngine(t, slots, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")

	replies, err := e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)
	assert.Equal(t, msgSheetError, replies[0].Text)
	assert.Equal(t, ModeNone, loadSession(t, e, user.ID).Mode)
}

func TestSlotCancelResetsSession(t *testing.T) {
	slots := newStubSlots(Slot{Row: 1, Col: 1, Label: "14/04 — horário 1"})
	e := newTestEngine(t, slots, nil)
	user := User{ID: 7}
	ctx := context.Background()
	_, err := e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user, "Maria", "12345", "Dr. Silva", "Artroplastia", "15/04/2026", "-")
	_, err = e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)

	replies, err := e.HandleCallback(ctx, user, "SLOT:CANCEL")
	require.NoError(t, err)
	assert.Equal(t, msgCancelled, replies[0].Text)

	s := loadSession(t, e, user.ID)
	assert.Equal(t, ModeNone, s.Mode)
	assert.Empty(t, s.BookingText)
	assert.Empty(t, s.CachedSlots)
}

func TestEndToEndDirectScheduling(t *testing.T) {
	slots := newStubSlots(Slot{Row: 2, Col: 1, Label: "20/04 — horário 1"})
	audit := &stubAudit{}
	e := newTestEngine(t, slots, audit)
	user := User{ID: 99, Username: "marcacao"}
	ctx := context.Background()

	_, err := e.Start(ctx, user)
	require.NoError(t, err)
	_, err = e.HandleCallback(ctx, user, "MENU:SCHED")
	require.NoError(t, err)
	answerSchedFields(t, e, user,
		"Maria", "12345", "Dr. Silva", "Artroplastia total de quadril", "15/04/2026", "-")
	_, err = e.HandleCallback(ctx, user, "CONFIRM:SIM")
	require.NoError(t, err)
	replies, err := e.HandleCallback(ctx, user, "SLOT:2:1")
	require.NoError(t, err)
	assert.Equal(t, msgBooked, replies[0].Text)

	cell := slots.cells["2:1"]
	assert.True(t, strings.Contains(cell, "Maria") && strings.Contains(cell, "12345") &&
		strings.Contains(cell, "15/04/2026"), "cell %q should carry the frozen summary", cell)

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, PathDirect, rec.Path)
	assert.Equal(t, EligibleYes, rec.Eligible)
	assert.Equal(t, CriterionDirect, rec.Criterion)
	assert.Equal(t, "20/04 — horário 1", rec.SlotLabel)
}

func TestSessionsAreIndependentAcrossUsers(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	ctx := context.Background()
	userA := User{ID: 1}
	userB := User{ID: 2}

	_, err := e.HandleCallback(ctx, userA, "MENU:SCHED")
	require.NoError(t, err)
	_, err = e.HandleCallback(ctx, userB, "MENU:ELIG")
	require.NoError(t, err)
	answerSchedFields(t, e, userA, "Maria")

	assert.Equal(t, ModeScheduling, loadSession(t, e, userA.ID).Mode)
	assert.Equal(t, ModeEligibility, loadSession(t, e, userB.ID).Mode)
	assert.Empty(t, loadSession(t, e, userB.ID).Answers)
}
