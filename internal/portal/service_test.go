package portal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxportal/internal/apperror"
	"github.com/drfirst/go-rxportal/internal/domain/accessibility"
	"github.com/drfirst/go-rxportal/internal/domain/consultation"
	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/domain/prescription"
	"github.com/drfirst/go-rxportal/internal/events"
	"github.com/drfirst/go-rxportal/internal/observability/metrics"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingRearmer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRearmer) Arm(context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0
}

func (c *countingRearmer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	svc       *Service
	rx        *prescription.Store
	inbox     *notification.Store
	publisher *recordingPublisher
	rearmer   *countingRearmer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	rx := prescription.NewStore()
	require.NoError(t, rx.Seed(prescription.DemoPrescriptions()...))
	inbox := notification.NewStore("user-1", nil, nil)

	f := &fixture{
		rx:        rx,
		inbox:     inbox,
		publisher: &recordingPublisher{},
		rearmer:   &countingRearmer{},
	}
	svc, err := New(Config{
		Prescriptions: rx,
		Notifications: inbox,
		Lifecycle:     f.rearmer,
		Publisher:     f.publisher,
		Metrics:       metrics.New(prometheus.NewRegistry()),
		Correlation:   func(context.Context) string { return "req-1" },
	}, nil)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) titles() []string {
	var out []string
	for _, n := range f.inbox.List(notification.Filter{}) {
		out = append(out, n.Title)
	}
	return out
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestRequestRefill_NotifiesAndRearms(t *testing.T) {
	f := newFixture(t)

	rx, err := f.svc.RequestRefill(context.Background(), "rx-1002")
	require.NoError(t, err)
	assert.Equal(t, 1, rx.RefillsRemaining)
	assert.Equal(t, prescription.StatusInProgress, rx.Status)

	inbox := f.inbox.List(notification.Filter{})
	require.Len(t, inbox, 1)
	assert.Equal(t, "Refill Requested", inbox[0].Title)
	assert.Equal(t, "Your refill request for Metformin has been submitted.", inbox[0].Message)
	assert.Equal(t, notification.TypeRefill, inbox[0].Type)
	assert.True(t, inbox[0].Urgent)

	assert.Equal(t, 1, f.rearmer.count())
	assert.Equal(t, []events.Type{events.NotificationCreated, events.PrescriptionRefillRequested}, f.publisher.types())
	assert.Equal(t, "req-1", f.publisher.events[1].CorrelationID)
}

func TestRequestRefill_RejectedLeavesNoTrace(t *testing.T) {
	f := newFixture(t)

	rx, err := f.svc.CreatePrescription(context.Background(), prescription.Draft{
		Name:         "Azithromycin",
		Dosage:       "250mg",
		Instructions: "Take daily",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, rx.RefillsRemaining)
	assert.Equal(t, prescription.StatusInProgress, rx.Status)

	_, err = f.svc.RequestRefill(context.Background(), rx.ID)
	assert.ErrorIs(t, err, apperror.ErrNoRefillsRemaining)
	assert.Empty(t, f.titles())

	after, err := f.svc.Prescription(rx.ID)
	require.NoError(t, err)
	assert.Equal(t, rx, after)

	_, err = f.svc.RequestRefill(context.Background(), "rx-missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestCreatePrescription_PublishesAndRearms(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePrescription(context.Background(), prescription.Draft{Name: "X"})
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, 0, f.rearmer.count())

	rx, err := f.svc.CreatePrescription(context.Background(), prescription.Draft{
		Name: "Amoxicillin", Dosage: "500mg", Instructions: "Three times daily",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.rearmer.count())
	assert.Equal(t, []events.Type{events.PrescriptionCreated}, f.publisher.types())
	assert.Equal(t, rx.ID, f.publisher.events[0].AggregateID)
}

func TestPickup(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Pickup(context.Background(), "rx-1002")
	assert.True(t, apperror.IsValidation(err), "inProgress cannot be picked up")

	_, err = f.svc.Pickup(context.Background(), "rx-nope")
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, f.titles())

	for _, id := range []string{"rx-1001", "rx-1004"} {
		_, err := f.svc.Pickup(context.Background(), id)
		require.NoError(t, err)
	}
	inbox := f.inbox.List(notification.Filter{})
	require.Len(t, inbox, 2)
	assert.Equal(t, "Pickup Initiated", inbox[0].Title)
	assert.Contains(t, inbox[0].Message, "Levothyroxine")
	assert.False(t, inbox[0].Urgent)
}

func TestUpdateStatus_ReadyNotifiesOnTransitionOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, "rx-1002", prescription.StatusReadyForPickup)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, "rx-1002", prescription.StatusReadyForPickup)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, "rx-1001", prescription.StatusPartial)
	require.NoError(t, err)

	assert.Equal(t, []string{"Prescription Ready"}, f.titles())
	assert.Equal(t, 3, f.rearmer.count())
	assert.Contains(t, f.publisher.types(), events.PrescriptionReady)

	_, err = f.svc.UpdateStatus(ctx, "rx-1001", prescription.Status("shipped"))
	assert.True(t, apperror.IsValidation(err))
	_, err = f.svc.UpdateStatus(ctx, "rx-404", prescription.StatusFilled)
	assert.True(t, apperror.IsNotFound(err))
}

func TestUpdateStatus_ConcurrentReadyNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateStatus(ctx, "rx-1002", prescription.StatusReadyForPickup)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"Prescription Ready"}, f.titles())
}

func TestUpdatePrescription_Merge(t *testing.T) {
	f := newFixture(t)
	ready := prescription.StatusReadyForPickup
	pharmacy := "CarePharm"

	rx, err := f.svc.UpdatePrescription(context.Background(), "rx-1003", prescription.Patch{
		Status:   &ready,
		Pharmacy: &pharmacy,
	})
	require.NoError(t, err)
	assert.Equal(t, "CarePharm", rx.Pharmacy)
	assert.Equal(t, "Atorvastatin", rx.Name)
	assert.Equal(t, []string{"Prescription Ready"}, f.titles())

	var data events.PrescriptionData
	last := f.publisher.events[len(f.publisher.events)-1]
	require.Equal(t, events.PrescriptionUpdated, last.Type)
	require.NoError(t, last.Decode(&data))
	assert.Equal(t, prescription.StatusPartial, data.PreviousStatus)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inbox.Seed(notification.DemoNotifications("user-1", time.Now())...))

	_, unread := f.svc.Notifications(notification.Filter{})
	assert.Equal(t, 2, unread)

	_, err := f.svc.MarkRead("notif-1")
	require.NoError(t, err)
	_, err = f.svc.MarkRead("notif-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.svc.UnreadCount())

	_, err = f.svc.MarkRead("notif-x")
	assert.True(t, apperror.IsNotFound(err))

	f.svc.MarkAllRead()
	assert.Equal(t, 0, f.svc.UnreadCount())
}

func TestBookConsultation(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.BookConsultation(context.Background(), consultation.Draft{
		Type:          consultation.TypeVideo,
		ScheduledTime: "2026-11-02T15:30:00Z",
		Provider:      "Dr. Patel",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, consultation.StatusScheduled, c.Status)

	inbox := f.inbox.List(notification.Filter{})
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.TypeAppointment, inbox[0].Type)
	assert.Contains(t, inbox[0].Message, "Dr. Patel")
	assert.Len(t, f.svc.Consultations(consultation.Filter{}), 1)
	assert.Contains(t, f.publisher.types(), events.ConsultationBooked)

	_, err = f.svc.BookConsultation(context.Background(), consultation.Draft{Type: consultation.TypeChat})
	assert.True(t, apperror.IsValidation(err))
}

func TestRequestCurbsidePickup(t *testing.T) {
	f := newFixture(t)

	req, err := f.svc.RequestCurbsidePickup(context.Background(), accessibility.Draft{
		PrescriptionNumber: "rx-1001",
		VehicleDescription: "Blue sedan",
		PickupWindow:       accessibility.WindowMorning,
		MobilityAids:       []accessibility.Aid{accessibility.AidMobility},
	})
	require.NoError(t, err)
	assert.True(t, req.NeedsAssistance)

	inbox := f.inbox.List(notification.Filter{})
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.TypeSystem, inbox[0].Type)
	assert.Contains(t, inbox[0].Message, "9am - 12pm")
	assert.Contains(t, inbox[0].Message, "assist")

	done, err := f.svc.CompletePickup(req.ID)
	require.NoError(t, err)
	assert.Equal(t, accessibility.StatusCompleted, done.Status)
	assert.Len(t, f.svc.PickupRequests(), 1)
}

func TestSendDisposalReminder(t *testing.T) {
	f := newFixture(t)

	n, err := f.svc.SendDisposalReminder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notification.TypeDisposal, n.Type)
	assert.False(t, n.Urgent)
}

func TestCostSummary(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreatePrescription(context.Background(), prescription.Draft{
		Name: "Azithromycin", Dosage: "250mg", Instructions: "Take daily",
	})
	require.NoError(t, err)

	sum := f.svc.CostSummary()
	require.Len(t, sum.Items, 5)

	assert.True(t, sum.Items[0].HasCost)
	assert.Equal(t, 35.99, sum.Items[0].Savings)
	assert.False(t, sum.Items[4].HasCost)

	assert.Equal(t, 199.49, sum.TotalRetail)
	assert.Equal(t, 39.0, sum.TotalWithInsurance)
	assert.Equal(t, 39.0, sum.TotalCopay)
	assert.Equal(t, 160.49, sum.TotalSavings)
}
