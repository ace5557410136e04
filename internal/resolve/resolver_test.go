package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedassist/internal/llm"
	"schedassist/internal/model"
)

// fakeSource serves a fixed event list filtered in memory.
type fakeSource struct {
	events []model.Event
}

func (f *fakeSource) Query(filter model.Filter, now time.Time) []model.Event {
	var out []model.Event
	for _, ev := range f.events {
		if filter.Matches(&ev, now) {
			out = append(out, ev)
		}
	}
	return out
}

// fakeInterp returns a canned draft.
type fakeInterp struct {
	draft *llm.OperationDraft
	err   error
}

func (f *fakeInterp) Interpret(_ context.Context, _ string, _ time.Time) (*llm.OperationDraft, error) {
	return f.draft, f.err
}

func (f *fakeInterp) Ping(_ context.Context) error { return nil }

func event(title string, start time.Time) model.Event {
	d := model.EventDraft{Title: title, Start: start, End: start.Add(time.Hour)}
	return d.NewEvent(start.Add(-time.Hour))
}

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func TestResolveCreateCommand(t *testing.T) {
	r := New(&fakeSource{}, llm.NewMock())

	op, err := r.ResolveCommand(Command{Name: "create", Args: map[string]string{
		"title":    "Dentist",
		"start":    "2024-01-16T09:00:00Z",
		"duration": "45m",
		"tags":     "health, personal",
		"priority": "high",
	}}, testNow)
	require.NoError(t, err)

	assert.Equal(t, model.OpCreate, op.Kind)
	require.NotNil(t, op.Draft)
	assert.Equal(t, "Dentist", op.Draft.Title)
	assert.Equal(t, []string{"health", "personal"}, op.Draft.Tags)
	assert.Equal(t, model.PriorityHigh, op.Draft.Priority)
	assert.True(t, op.Draft.End.Equal(op.Draft.Start.Add(45*time.Minute)))
}

func TestResolveCreateCommandErrors(t *testing.T) {
	r := New(&fakeSource{}, llm.NewMock())

	cases := map[string]map[string]string{
		"no title":     {"start": "2024-01-16T09:00:00Z", "end": "2024-01-16T10:00:00Z"},
		"no end":       {"title": "X", "start": "2024-01-16T09:00:00Z"},
		"bad start":    {"title": "X", "start": "whenever", "end": "2024-01-16T10:00:00Z"},
		"inverted":     {"title": "X", "start": "2024-01-16T10:00:00Z", "end": "2024-01-16T09:00:00Z"},
		"bad priority": {"title": "X", "start": "2024-01-16T09:00:00Z", "end": "2024-01-16T10:00:00Z", "priority": "extreme"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.ResolveCommand(Command{Name: "create", Args: args}, testNow)
			assert.ErrorIs(t, err, ErrInvalidArgs)
		})
	}
}

func TestResolveUpdateCommand(t *testing.T) {
	r := New(&fakeSource{}, llm.NewMock())

	op, err := r.ResolveCommand(Command{Name: "update", Args: map[string]string{
		"id":    "ev-1",
		"title": "Dentist (moved)",
		"start": "2024-01-16T16:00:00Z",
	}}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpUpdate, op.Kind)
	assert.Equal(t, "ev-1", op.TargetID)
	require.NotNil(t, op.Patch)
	assert.Equal(t, "Dentist (moved)", *op.Patch.Title)

	_, err = r.ResolveCommand(Command{Name: "update", Args: map[string]string{"id": "ev-1"}}, testNow)
	assert.ErrorIs(t, err, ErrInvalidArgs, "empty patch")
}

func TestResolveListCommand(t *testing.T) {
	r := New(&fakeSource{}, llm.NewMock())

	op, err := r.ResolveCommand(Command{Name: "list", Args: map[string]string{
		"today": "true",
		"tag":   "work",
	}}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpQuery, op.Kind)
	require.NotNil(t, op.Filter)
	assert.True(t, op.Filter.Today)
	assert.Equal(t, "work", op.Filter.Tag)
}

func TestResolveSimpleCommands(t *testing.T) {
	r := New(&fakeSource{}, llm.NewMock())

	op, err := r.ResolveCommand(Command{Name: "stats"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpStats, op.Kind)

	op, err = r.ResolveCommand(Command{Name: "backup"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpBackup, op.Kind)

	op, err = r.ResolveCommand(Command{Name: "restore", Args: map[string]string{"id": "schedule_backup_20240115_090000.json"}}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpRestore, op.Kind)
	assert.Equal(t, "schedule_backup_20240115_090000.json", op.SnapshotID)

	_, err = r.ResolveCommand(Command{Name: "explode"}, testNow)
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestResolveTextCreate(t *testing.T) {
	interp := &fakeInterp{draft: &llm.OperationDraft{
		Action: llm.ActionCreate,
		EventData: &llm.EventData{
			Title:     "Dentist",
			StartTime: "2024-01-16T09:00:00Z",
			EndTime:   "2024-01-16T10:00:00Z",
			Priority:  "High",
		},
		ResponseText: "Created the dentist appointment.",
	}}
	r := New(&fakeSource{}, interp)

	op, err := r.ResolveText(context.Background(), "dentist tomorrow at nine", testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpCreate, op.Kind)
	assert.Equal(t, model.PriorityHigh, op.Draft.Priority)
	assert.Equal(t, "Created the dentist appointment.", op.Reply)
}

func TestResolveTextRejectsBadDraftTimes(t *testing.T) {
	interp := &fakeInterp{draft: &llm.OperationDraft{
		Action:    llm.ActionCreate,
		EventData: &llm.EventData{Title: "Dentist", StartTime: "tomorrow-ish", EndTime: "later"},
	}}
	r := New(&fakeSource{}, interp)

	_, err := r.ResolveText(context.Background(), "dentist", testNow)
	require.Error(t, err, "draft timestamps must parse before being trusted")
}

func TestResolveTextMissingDataBecomesReply(t *testing.T) {
	interp := &fakeInterp{draft: &llm.OperationDraft{
		Action:       llm.ActionCreate,
		EventData:    &llm.EventData{},
		ResponseText: "What should the appointment be called?",
		MissingData:  "Title",
	}}
	r := New(&fakeSource{}, interp)

	op, err := r.ResolveText(context.Background(), "make an appointment", testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpUnknown, op.Kind)
	assert.Equal(t, "What should the appointment be called?", op.Reply)
}

func TestResolveTextDeleteResolvesTarget(t *testing.T) {
	dentist := event("Dentist", testNow.Add(4*time.Hour))
	interp := &fakeInterp{draft: &llm.OperationDraft{
		Action:    llm.ActionDelete,
		EventData: &llm.EventData{Query: "dentist"},
	}}
	r := New(&fakeSource{events: []model.Event{dentist, event("Standup", testNow.Add(time.Hour))}}, interp)

	op, err := r.ResolveText(context.Background(), "cancel the dentist", testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpDelete, op.Kind)
	assert.Equal(t, dentist.ID, op.TargetID)
}

func TestResolveTextDeleteNoMatch(t *testing.T) {
	interp := &fakeInterp{draft: &llm.OperationDraft{
		Action:    llm.ActionDelete,
		EventData: &llm.EventData{Query: "dentist"},
	}}
	r := New(&fakeSource{}, interp)

	_, err := r.ResolveText(context.Background(), "cancel the dentist", testNow)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestResolveTextDeleteAmbiguous(t *testing.T) {
	interp := &fakeInterp{draft: &llm.OperationDraft{
		Action:    llm.ActionDelete,
		EventData: &llm.EventData{Query: "meeting"},
	}}
	r := New(&fakeSource{events: []model.Event{
		event("Team meeting", testNow.Add(time.Hour)),
		event("Board meeting", testNow.Add(2*time.Hour)),
	}}, interp)

	_, err := r.ResolveText(context.Background(), "cancel the meeting", testNow)
	var ambig *AmbiguousError
	require.ErrorAs(t, err, &ambig)
	assert.Len(t, ambig.Matches, 2)
}

func TestResolveTextListWindow(t *testing.T) {
	interp := &fakeInterp{draft: &llm.OperationDraft{
		Action:    llm.ActionList,
		EventData: &llm.EventData{Window: "today"},
	}}
	r := New(&fakeSource{}, interp)

	op, err := r.ResolveText(context.Background(), "show today's schedule", testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpQuery, op.Kind)
	require.NotNil(t, op.Filter)
	assert.True(t, op.Filter.Today)
}

func TestResolveTextGeneralResponse(t *testing.T) {
	interp := &fakeInterp{draft: &llm.OperationDraft{
		Action:       llm.ActionGeneral,
		ResponseText: "Hello! Ask me about your schedule.",
	}}
	r := New(&fakeSource{}, interp)

	op, err := r.ResolveText(context.Background(), "hi there", testNow)
	require.NoError(t, err)
	assert.Equal(t, model.OpUnknown, op.Kind)
	assert.Equal(t, "Hello! Ask me about your schedule.", op.Reply)
}
