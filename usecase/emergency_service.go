package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

const recordCallTimeout = 5 * time.Second

// Assessment is what the front end knows about the scene when a handoff starts.
// Empty fields fall back to the initial assessment placeholders.
type Assessment struct {
	CurrentActions      []string `json:"current_actions,omitempty"`
	VictimStatus        string   `json:"victim_status,omitempty"`
	ResponderCapability string   `json:"responder_capability,omitempty"`
	LocationDetails     string   `json:"location_details,omitempty"`
}

func (a Assessment) withDefaults() Assessment {
	if len(a.CurrentActions) == 0 {
		a.CurrentActions = []string{defaultCurrentAction}
	}
	if a.VictimStatus == "" {
		a.VictimStatus = defaultVictimStatus
	}
	if a.ResponderCapability == "" {
		a.ResponderCapability = defaultResponderCapability
	}
	if a.LocationDetails == "" {
		a.LocationDetails = defaultLocationDetails
	}
	return a
}

// IncidentSnapshot is a consistent read of the coordinator state
type IncidentSnapshot struct {
	Status       entities.EmergencyStatus    `json:"status"`
	IncidentID   string                      `json:"incident_id,omitempty"`
	Category     entities.EmergencyCategory  `json:"category,omitempty"`
	StartedAt    *time.Time                  `json:"started_at,omitempty"`
	Handoff      *entities.EmergencyHandoff  `json:"handoff,omitempty"`
	Context      *entities.DispatcherContext `json:"dispatcher_context,omitempty"`
	Location     *entities.Coordinates       `json:"location,omitempty"`
	LastError    string                      `json:"last_error,omitempty"`
	Instructions []string                    `json:"instructions"`
}

// EmergencyOption configures an EmergencyService
type EmergencyOption func(*EmergencyService)

// WithCallRecords sets the store finished incidents are recorded to
func WithCallRecords(records repositories.CallRecordRepository) EmergencyOption {
	return func(s *EmergencyService) {
		s.records = records
	}
}

// WithEventPublisher sets the observer of lifecycle events
func WithEventPublisher(publisher repositories.EventPublisher) EmergencyOption {
	return func(s *EmergencyService) {
		s.publisher = publisher
	}
}

// WithEmergencyClock replaces the wall clock used for timestamps
func WithEmergencyClock(c clock.Clock) EmergencyOption {
	return func(s *EmergencyService) {
		s.clock = c
	}
}

// EmergencyService coordinates one incident at a time: it owns the status,
// the current handoff and the dispatcher context, and sequences the handoff.
type EmergencyService struct {
	builder   *DispatcherContextBuilder
	audio     *AudioService
	transport repositories.DispatcherTransport
	records   repositories.CallRecordRepository
	publisher repositories.EventPublisher
	clock     clock.Clock
	logger    *zap.Logger

	// opMu serialises state-changing operations so collaborator I/O never
	// runs under mu and readers are not blocked by it.
	opMu sync.Mutex

	mu         sync.RWMutex
	status     entities.EmergencyStatus
	incidentID string
	category   entities.EmergencyCategory
	startedAt  time.Time
	handoff    *entities.EmergencyHandoff
	dispatch   *entities.DispatcherContext
	location   *entities.Coordinates
	lastErr    error

	recordWG sync.WaitGroup
}

// NewEmergencyService creates a new emergency coordinator
func NewEmergencyService(
	audio *AudioService,
	transport repositories.DispatcherTransport,
	logger *zap.Logger,
	opts ...EmergencyOption,
) *EmergencyService {
	s := &EmergencyService{
		builder:   NewDispatcherContextBuilder(logger),
		audio:     audio,
		transport: transport,
		clock:     clock.New(),
		logger:    logger,
		status:    entities.StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Audio returns the audio service driven by the coordinator
func (s *EmergencyService) Audio() *AudioService {
	return s.audio
}

// InitiateResponse starts a new incident for category. It is rejected with
// domain.ErrAlreadyActive while another incident is active.
func (s *EmergencyService) InitiateResponse(category entities.EmergencyCategory) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if err := s.checkStartableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !category.Valid() {
		s.mu.Unlock()
		return fmt.Errorf("%w: unknown category %q", domain.ErrContextBuild, category)
	}
	s.beginIncidentLocked(category)
	event := s.eventLocked(entities.EventResponseInitiated, "")
	s.mu.Unlock()

	s.audio.BeginEmergency()

	s.logger.Info("Emergency response initiated",
		zap.String("incidentID", event.IncidentID),
		zap.String("category", string(category)))
	s.publish(event)
	return nil
}

func (s *EmergencyService) checkStartableLocked() error {
	switch s.status {
	case entities.StatusIdle:
		return nil
	case entities.StatusActive:
		return domain.ErrAlreadyActive
	default:
		return fmt.Errorf("%w: status is %s", domain.ErrInvalidState, s.status)
	}
}

func (s *EmergencyService) beginIncidentLocked(category entities.EmergencyCategory) {
	s.incidentID = uuid.NewString()
	s.category = category
	s.startedAt = s.clock.Now()
	s.status = entities.StatusActive
	s.handoff = nil
	s.dispatch = nil
	s.location = nil
	s.lastErr = nil
}

// InitiateSmartHandoff starts the dispatcher handoff with placeholder assessment
func (s *EmergencyService) InitiateSmartHandoff(ctx context.Context, category entities.EmergencyCategory) error {
	return s.InitiateSmartHandoffWithAssessment(ctx, category, Assessment{})
}

// InitiateSmartHandoffWithAssessment builds the dispatcher context, selects a
// strategy, overrides the audio output, dials the escalation number and
// delivers the context. From Idle it starts the incident; while Active it
// replaces the previous context and handoff. Any failure leaves the status
// in Error with the last context and handoff kept for inspection.
func (s *EmergencyService) InitiateSmartHandoffWithAssessment(ctx context.Context, category entities.EmergencyCategory, assessment Assessment) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	if status.Terminal() {
		return fmt.Errorf("%w: status is %s", domain.ErrInvalidState, status)
	}

	s.logger.Info("Initiating smart handoff", zap.String("category", string(category)))

	assessment = assessment.withDefaults()
	dispatcherContext, err := s.builder.Build(
		category,
		assessment.CurrentActions,
		assessment.VictimStatus,
		assessment.ResponderCapability,
		assessment.LocationDetails,
	)
	if err != nil {
		s.fail(err)
		return err
	}

	strategy := DetermineStrategy(dispatcherContext)
	handoff := &entities.EmergencyHandoff{
		ContextSummary: dispatcherContext.Summary(),
		Strategy:       strategy,
		InitiatedAt:    s.clock.Now(),
	}

	s.mu.Lock()
	started := s.status == entities.StatusIdle
	if started {
		s.beginIncidentLocked(category)
	}
	s.category = category
	handoff.IncidentID = s.incidentID
	s.handoff = handoff
	s.dispatch = &dispatcherContext
	event := s.eventLocked(entities.EventHandoffInitiated, StrategyRationale(category))
	s.mu.Unlock()

	if started {
		s.audio.BeginEmergency()
	}

	s.logger.Info("Handoff strategy selected",
		zap.String("incidentID", handoff.IncidentID),
		zap.String("category", string(category)),
		zap.String("strategy", string(strategy)),
		zap.String("rationale", StrategyRationale(category)))
	s.publish(event)

	if err := s.audio.SetEmergencyVolume(ctx); err != nil {
		s.fail(err)
		return err
	}
	s.audio.OptimizeInputVolume(ctx)

	number := dispatcherContext.EmergencyNumber
	s.logger.Info("Connecting to emergency number", zap.String("number", number))
	if err := s.transport.Dial(ctx, number, dispatcherContext.LocationDetails); err != nil {
		err = transportError(fmt.Sprintf("dial %s", number), err)
		s.fail(err)
		return err
	}

	if err := s.transport.DeliverContext(ctx, dispatcherContext.Clone()); err != nil {
		err = transportError("deliver dispatcher context", err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.handoff == handoff {
		handoff.DispatcherConnected = true
	}
	s.mu.Unlock()

	s.logger.Info("Dispatcher context provided",
		zap.String("incidentID", handoff.IncidentID),
		zap.String("summary", handoff.ContextSummary))
	return nil
}

func transportError(op string, err error) error {
	if errors.Is(err, domain.ErrTransport) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrTransport, op, err)
}

// fail moves the incident to Error, keeping context and handoff
func (s *EmergencyService) fail(err error) {
	s.mu.Lock()
	s.status = entities.StatusError
	s.lastErr = err
	event := s.eventLocked(entities.EventHandoffFailed, err.Error())
	s.mu.Unlock()

	s.logger.Error("Emergency handoff failed",
		zap.String("incidentID", event.IncidentID),
		zap.Error(err))
	s.publish(event)
}

// CoordinateHandoffTiming applies the stored strategy to the handoff flags.
// Strategies that wait on external readiness leave the flags alone.
func (s *EmergencyService) CoordinateHandoffTiming() {
	s.mu.Lock()
	if s.handoff == nil {
		s.mu.Unlock()
		return
	}

	strategy := s.handoff.Strategy
	switch strategy {
	case entities.HandoffImmediate:
		s.handoff.UserReadyForHandoff = true
	case entities.HandoffAfterAction:
		s.handoff.LifesavingActionsInProgress = true
	}
	events := []entities.EmergencyEvent{s.eventLocked(entities.EventTimingCoordinating, "")}
	if event, ok := s.advanceLocked(); ok {
		events = append(events, event)
	}
	s.mu.Unlock()

	switch strategy {
	case entities.HandoffImmediate:
		s.logger.Info("Immediate handoff ready")
	case entities.HandoffAfterAction:
		s.logger.Info("Monitoring lifesaving actions for handoff timing")
	case entities.HandoffNaturalBreak:
		s.logger.Info("Seeking natural break in lifesaving sequence")
	case entities.HandoffDispatcherReady:
		s.logger.Info("Waiting for dispatcher readiness")
	case entities.HandoffUserReady:
		s.logger.Info("Waiting for user readiness")
	}
	for _, event := range events {
		s.publish(event)
	}
}

// SignalDispatcherReady records that the dispatcher is ready to take over
func (s *EmergencyService) SignalDispatcherReady() {
	s.signal("dispatcher ready", func(h *entities.EmergencyHandoff) {
		h.DispatcherReady = true
	})
}

// SignalUserReady records that the responder is ready to hand over
func (s *EmergencyService) SignalUserReady() {
	s.signal("user ready", func(h *entities.EmergencyHandoff) {
		h.UserReadyForHandoff = true
	})
}

// SignalActionCompleted records that the current lifesaving action finished.
// Under AfterAction this is what makes the responder ready.
func (s *EmergencyService) SignalActionCompleted() {
	s.signal("action completed", func(h *entities.EmergencyHandoff) {
		h.LifesavingActionsInProgress = false
		if h.Strategy == entities.HandoffAfterAction {
			h.UserReadyForHandoff = true
		}
	})
}

func (s *EmergencyService) signal(name string, apply func(*entities.EmergencyHandoff)) {
	s.mu.Lock()
	if s.handoff == nil {
		s.mu.Unlock()
		s.logger.Debug("Ignoring readiness signal without handoff", zap.String("signal", name))
		return
	}
	apply(s.handoff)
	event, ok := s.advanceLocked()
	s.mu.Unlock()

	s.logger.Info("Readiness signal received", zap.String("signal", name))
	if ok {
		s.publish(event)
	}
}

// advanceLocked completes the incident once the dispatcher is connected and
// the readiness signals satisfy the strategy.
func (s *EmergencyService) advanceLocked() (entities.EmergencyEvent, bool) {
	h := s.handoff
	if s.status != entities.StatusActive || h == nil || !h.DispatcherConnected || !h.Ready() {
		return entities.EmergencyEvent{}, false
	}
	h.HandoffDelay = s.clock.Since(h.InitiatedAt)
	s.status = entities.StatusCompleted
	return s.eventLocked(entities.EventHandoffReady, h.HandoffDelay.String()), true
}

// EnableDispatcherAudioMonitoring turns on the dispatcher audio feed for the
// current context. It does nothing without a context.
func (s *EmergencyService) EnableDispatcherAudioMonitoring() {
	s.mu.Lock()
	if s.dispatch == nil {
		s.mu.Unlock()
		return
	}
	s.dispatch.AudioFeedEnabled = true
	event := s.eventLocked(entities.EventAudioMonitoring, "")
	s.mu.Unlock()

	s.logger.Info("Dispatcher audio monitoring enabled")
	s.publish(event)
}

// GetInstructions returns the instructions for the current category. The
// generic list is returned with no incident or when the handoff failed.
func (s *EmergencyService) GetInstructions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instructionsLocked()
}

func (s *EmergencyService) instructionsLocked() []string {
	if s.category == "" || s.status == entities.StatusError {
		return entities.GenericInstructions()
	}
	return s.category.Instructions()
}

// EndResponse clears the incident and returns to Idle. It is safe from any state.
func (s *EmergencyService) EndResponse() {
	s.finish(entities.StatusIdle, entities.EventResponseEnded)
}

// CancelResponse aborts the incident deliberately. State is cleared as with
// EndResponse but the status becomes Cancelled.
func (s *EmergencyService) CancelResponse() {
	s.finish(entities.StatusCancelled, entities.EventResponseCancelled)
}

func (s *EmergencyService) finish(next entities.EmergencyStatus, eventType entities.EventType) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	record := s.callRecordLocked(next)
	if next == entities.StatusCancelled && s.status == entities.StatusIdle {
		next = entities.StatusIdle
	}
	s.status = next
	event := s.eventLocked(eventType, "")
	s.incidentID = ""
	s.category = ""
	s.startedAt = time.Time{}
	s.handoff = nil
	s.dispatch = nil
	s.location = nil
	s.lastErr = nil
	s.mu.Unlock()

	s.audio.EndEmergency()

	if record != nil {
		s.recordAsync(record)
	}
	s.logger.Info("Emergency response finished", zap.String("status", string(next)))
	s.publish(event)
}

func (s *EmergencyService) callRecordLocked(next entities.EmergencyStatus) *entities.EmergencyCallData {
	if s.category == "" {
		return nil
	}

	finalStatus := s.status
	if next == entities.StatusCancelled {
		finalStatus = entities.StatusCancelled
	}

	record := &entities.EmergencyCallData{
		ID:                uuid.NewString(),
		IncidentID:        s.incidentID,
		Category:          s.category,
		Timestamp:         s.startedAt,
		Duration:          s.clock.Since(s.startedAt),
		HandoffSuccessful: finalStatus == entities.StatusCompleted,
		FinalStatus:       finalStatus,
	}
	if s.location != nil {
		location := *s.location
		record.Location = &location
	}
	if s.handoff != nil {
		record.Strategy = s.handoff.Strategy
		record.ContextProvided = s.handoff.DispatcherConnected
	}
	return record
}

func (s *EmergencyService) recordAsync(record *entities.EmergencyCallData) {
	s.recordWG.Add(1)
	go func() {
		defer s.recordWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), recordCallTimeout)
		defer cancel()

		if err := s.RecordEmergencyCall(ctx, record); err != nil {
			s.logger.Error("Failed to record emergency call",
				zap.String("incidentID", record.IncidentID),
				zap.Error(err))
		}
	}()
}

// RecordEmergencyCall stores call data for later analysis
func (s *EmergencyService) RecordEmergencyCall(ctx context.Context, record *entities.EmergencyCallData) error {
	if s.records == nil {
		s.logger.Debug("No call record store configured, dropping record",
			zap.String("incidentID", record.IncidentID))
		return nil
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid call record: %w", err)
	}
	if err := s.records.RecordCall(ctx, record); err != nil {
		if errors.Is(err, domain.ErrStorage) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	s.logger.Info("Emergency call recorded",
		zap.String("incidentID", record.IncidentID),
		zap.String("category", string(record.Category)),
		zap.Bool("handoffSuccessful", record.HandoffSuccessful))
	return nil
}

// CallEmergencyNumber dials the escalation number for the current category,
// or 911 when no incident is active.
func (s *EmergencyService) CallEmergencyNumber(ctx context.Context, location string) error {
	s.mu.RLock()
	number := entities.EmergencyNumber
	if s.category != "" {
		number = s.category.EscalationNumber()
	}
	s.mu.RUnlock()

	s.logger.Info("Calling emergency number",
		zap.String("number", number),
		zap.String("location", location))
	if err := s.transport.Dial(ctx, number, location); err != nil {
		return transportError(fmt.Sprintf("dial %s", number), err)
	}
	return nil
}

// ShareLocation sends the responder's coordinates to emergency services and
// keeps them for the call record.
func (s *EmergencyService) ShareLocation(ctx context.Context, latitude, longitude float64) error {
	location := entities.Coordinates{Latitude: latitude, Longitude: longitude}
	if err := location.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.category != "" {
		s.location = &location
	}
	event := s.eventLocked(entities.EventLocationShared, "")
	s.mu.Unlock()

	s.logger.Info("Sharing location",
		zap.Float64("latitude", latitude),
		zap.Float64("longitude", longitude))
	if err := s.transport.ShareLocation(ctx, location); err != nil {
		return transportError("share location", err)
	}
	s.publish(event)
	return nil
}

// Status returns the coordinator status
func (s *EmergencyService) Status() entities.EmergencyStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CurrentCategory returns the active category, empty when idle
func (s *EmergencyService) CurrentCategory() entities.EmergencyCategory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// CurrentHandoff returns a copy of the current handoff, or nil
func (s *EmergencyService) CurrentHandoff() *entities.EmergencyHandoff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handoff == nil {
		return nil
	}
	h := *s.handoff
	return &h
}

// CurrentContext returns a copy of the current dispatcher context, or nil
func (s *EmergencyService) CurrentContext() *entities.DispatcherContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dispatch == nil {
		return nil
	}
	c := s.dispatch.Clone()
	return &c
}

// LastError returns the failure that moved the incident to Error
func (s *EmergencyService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Snapshot returns the whole coordinator state in one consistent read
func (s *EmergencyService) Snapshot() IncidentSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := IncidentSnapshot{
		Status:       s.status,
		IncidentID:   s.incidentID,
		Category:     s.category,
		Instructions: s.instructionsLocked(),
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		snapshot.StartedAt = &startedAt
	}
	if s.handoff != nil {
		h := *s.handoff
		snapshot.Handoff = &h
	}
	if s.dispatch != nil {
		c := s.dispatch.Clone()
		snapshot.Context = &c
	}
	if s.location != nil {
		location := *s.location
		snapshot.Location = &location
	}
	if s.lastErr != nil {
		snapshot.LastError = s.lastErr.Error()
	}
	return snapshot
}

// Close waits for in-flight call record writes
func (s *EmergencyService) Close() {
	s.recordWG.Wait()
}

func (s *EmergencyService) eventLocked(eventType entities.EventType, detail string) entities.EmergencyEvent {
	event := entities.EmergencyEvent{
		Type:       eventType,
		IncidentID: s.incidentID,
		Category:   s.category,
		Status:     s.status,
		Detail:     detail,
		Timestamp:  s.clock.Now(),
	}
	if s.handoff != nil {
		event.Strategy = s.handoff.Strategy
	}
	return event
}

func (s *EmergencyService) publish(event entities.EmergencyEvent) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}
