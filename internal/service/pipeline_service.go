package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rmscall/internal/callevent"
	"rmscall/internal/domain"
	"rmscall/internal/notify"
	"rmscall/internal/platform"
	"rmscall/internal/repository"
	"rmscall/internal/session"
)

// Uploader отправляет запись на бэкенд (backend.Client)
type Uploader interface {
	UploadRecording(ctx context.Context, ticketID, profileID, filePath string) (*domain.UploadReceipt, error)
}

// FolderSource отдает папку записей пользователя (FolderService)
type FolderSource interface {
	GetFolder(ctx context.Context, userID string) (string, error)
}

// UserSource отдает вошедшего пользователя (auth.Service)
type UserSource interface {
	CurrentUser() (*domain.User, bool)
}

type PipelineDeps struct {
	Permissions *PermissionService
	Locator     *RecordingService
	Uploader    Uploader
	Folders     FolderSource
	Users       UserSource
	Sessions    session.Store
	Listener    *callevent.Listener
	Dialer      platform.Dialer
	Uploads     *repository.UploadRepository
	Notifier    *notify.Notifier

	// необязательные
	Transcoder    *TranscodeService
	Archive       *ArchiveService
	OnAuthExpired func(ctx context.Context)
}

type PipelineOptions struct {
	Timeout      time.Duration
	SettleDelay  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	RequireFresh bool
}

// PipelineStatus - снимок состояния для API управления
type PipelineStatus struct {
	State      domain.PipelineState `json:"state"`
	Listening  bool                 `json:"listening"`
	ActiveCall *domain.CallSession  `json:"active_call,omitempty"`
}

// PipelineService связывает звонок с вакансией и кандидатом и отправляет запись после его окончания.
//
// Idle -> PermissionsChecking -> Ready -> CallInProgress -> Resolving -> Uploading -> Ready.
// Detach из любого состояния возвращает в Idle; результаты работы, начатой до Detach,
// не меняют состояние и не порождают уведомлений.
// Звонок, начатый во время Resolving/Uploading, обрабатывается после текущего прогона.
type PipelineService struct {
	deps PipelineDeps
	opts PipelineOptions

	mu         sync.Mutex
	state      domain.PipelineState
	generation uint64
	sub        *callevent.Subscription

	// новый звонок начат, пока обрабатывался предыдущий, и еще не закончился
	callPending bool
	// звонки, закончившиеся во время обработки предыдущего, в порядке окончания
	queued []pendingRun
}

// pendingRun - окончание звонка вместе с сессией, снятой в момент события
type pendingRun struct {
	event      domain.CallEvent
	session    domain.CallSession
	sessionErr error
}

func NewPipelineService(deps PipelineDeps, opts PipelineOptions) *PipelineService {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	return &PipelineService{
		deps:  deps,
		opts:  opts,
		state: domain.StateIdle,
	}
}

func (p *PipelineService) State() domain.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PipelineService) Status(ctx context.Context) PipelineStatus {
	status := PipelineStatus{
		State:     p.State(),
		Listening: p.deps.Listener.Listening(),
	}
	if sess, ok, err := p.deps.Sessions.GetActiveCall(ctx); err == nil && ok {
		status.ActiveCall = &sess
	}
	return status
}

// Attach проверяет разрешения и подписывается на окончание звонков (аналог монтирования экрана)
func (p *PipelineService) Attach(ctx context.Context) error {
	p.mu.Lock()
	if p.state != domain.StateIdle {
		p.mu.Unlock()
		return nil
	}
	p.generation++
	gen := p.generation
	p.state = domain.StatePermissionsChecking
	p.mu.Unlock()

	granted, err := p.deps.Permissions.EnsurePermissions(ctx, domain.PipelineCapabilities)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		// за время запроса разрешений конвейер отсоединили
		return nil
	}

	if err != nil || !granted {
		p.state = domain.StateIdle
		p.deps.Notifier.Error("Permissions Required", "Storage and phone permissions are needed to upload call recordings")
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
		}
		return domain.ErrPermissionDenied
	}

	sub, err := p.deps.Listener.OnCallEnded(func(event domain.CallEvent) {
		p.handleCallEnded(gen, event)
	})
	if err != nil {
		p.state = domain.StateIdle
		return fmt.Errorf("failed to subscribe to call events: %w", err)
	}

	p.sub = sub
	p.state = domain.StateReady
	log.Printf("[Pipeline] Attached, waiting for calls")
	return nil
}

// Detach снимает подписку; начатая обработка завершится, но ее результат будет отброшен
func (p *PipelineService) Detach() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.generation++
	wasAttached := p.state != domain.StateIdle
	p.state = domain.StateIdle
	p.callPending = false
	p.queued = nil
	p.mu.Unlock()

	sub.Unsubscribe()
	if wasAttached {
		log.Printf("[Pipeline] Detached")
	}
}

// StartCall запоминает вакансию и кандидата и открывает звонилку.
// Без разрешений звонок всё равно совершается, но запись не отправляется: tracked == false.
func (p *PipelineService) StartCall(ctx context.Context, ticketID, profileID, phone string) (bool, error) {
	ticketID = strings.TrimSpace(ticketID)
	profileID = strings.TrimSpace(profileID)
	if ticketID == "" || profileID == "" {
		return false, fmt.Errorf("ticket_id and profile_id are required")
	}
	if strings.TrimSpace(phone) == "" {
		return false, fmt.Errorf("phone number is required")
	}

	if p.State() == domain.StateIdle {
		if err := p.Attach(ctx); err != nil {
			log.Printf("[Pipeline] Recording pipeline unavailable for this call: %v", err)
		}
	}

	p.mu.Lock()
	tracked := p.state != domain.StateIdle && p.state != domain.StatePermissionsChecking
	if tracked {
		if p.state == domain.StateCallInProgress || p.callPending {
			log.Printf("[Pipeline] Warning: new call started before the previous one ended, session overwritten")
		}
		if err := p.deps.Sessions.SetActiveCall(ctx, ticketID, profileID); err != nil {
			p.mu.Unlock()
			return false, fmt.Errorf("failed to store call session: %w", err)
		}
		switch p.state {
		case domain.StateReady:
			p.state = domain.StateCallInProgress
		case domain.StateResolving, domain.StateUploading:
			p.callPending = true
		}
	}
	p.mu.Unlock()

	if err := p.deps.Dialer.Dial(ctx, platform.DialURI(phone)); err != nil {
		p.deps.Notifier.Error("Call Failed", "Could not open the dialer")
		p.mu.Lock()
		if tracked {
			if p.state == domain.StateCallInProgress {
				p.state = domain.StateReady
			}
			p.callPending = false
		}
		p.mu.Unlock()
		return false, err
	}

	log.Printf("[Pipeline] Call started for ticket %s, profile %s (tracked=%v)", ticketID, profileID, tracked)
	return tracked, nil
}

func (p *PipelineService) handleCallEnded(gen uint64, event domain.CallEvent) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		log.Printf("[Pipeline] %s ignored: pipeline detached", event.Kind)
		return
	}

	busy := p.state == domain.StateResolving || p.state == domain.StateUploading
	switch {
	case p.state == domain.StateCallInProgress:
	case busy && p.callPending:
		// сессию снимаем сейчас: следующий StartCall ее перезапишет
		sess, err := p.activeCall()
		p.queued = append(p.queued, pendingRun{event: event, session: sess, sessionErr: err})
		p.callPending = false
		state := p.state
		p.mu.Unlock()
		log.Printf("[Pipeline] %s queued until the run in state %s finishes", event.Kind, state)
		return
	default:
		state := p.state
		p.mu.Unlock()
		log.Printf("[Pipeline] %s ignored in state %s", event.Kind, state)
		return
	}

	sess, err := p.activeCall()
	p.state = domain.StateResolving
	p.mu.Unlock()

	p.run(gen, pendingRun{event: event, session: sess, sessionErr: err})
}

// activeCall читает слот сессии; вызывается под p.mu
func (p *PipelineService) activeCall() (domain.CallSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	sess, ok, err := p.deps.Sessions.GetActiveCall(ctx)
	if err == nil && !ok {
		err = domain.ErrNoActiveCall
	}
	return sess, err
}

// run обрабатывает звонок и затем все звонки, закончившиеся за это время
func (p *PipelineService) run(gen uint64, next pendingRun) {
	for {
		runID := uuid.New()
		log.Printf("[Pipeline] Run %s: %s received", runID, next.event.Kind)

		ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
		p.resolveAndUpload(ctx, gen, runID, next.session, next.sessionErr)
		cancel()

		var more bool
		next, more = p.finishRun(gen)
		if !more {
			return
		}
	}
}

func (p *PipelineService) finishRun(gen uint64) (pendingRun, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return pendingRun{}, false
	}
	if len(p.queued) > 0 {
		next := p.queued[0]
		p.queued = p.queued[1:]
		p.state = domain.StateResolving
		return next, true
	}
	if p.callPending {
		p.callPending = false
		p.state = domain.StateCallInProgress
		return pendingRun{}, false
	}
	p.state = domain.StateReady
	return pendingRun{}, false
}

func (p *PipelineService) resolveAndUpload(ctx context.Context, gen uint64, runID uuid.UUID, sess domain.CallSession, sessErr error) {
	if sessErr != nil {
		log.Printf("[Pipeline] Run %s: call session unavailable: %v", runID, sessErr)
		p.notify(gen, domain.LevelError, "Upload Failed", "No ticket/profile associated with this call")
		return
	}

	user, ok := p.deps.Users.CurrentUser()
	if !ok {
		p.notify(gen, domain.LevelError, "Login Required", "Log in to upload call recordings")
		return
	}

	folder, err := p.deps.Folders.GetFolder(ctx, user.UserID.String())
	if err != nil {
		p.reportResolveError(gen, runID, err)
		return
	}

	if p.opts.SettleDelay > 0 {
		select {
		case <-time.After(p.opts.SettleDelay):
		case <-ctx.Done():
			p.reportResolveError(gen, runID, ctx.Err())
			return
		}
	}

	rec, err := p.deps.Locator.FindLatestRecording(ctx, folder)
	if err != nil {
		p.reportResolveError(gen, runID, err)
		return
	}
	if p.opts.RequireFresh && rec.ModifiedAt.Before(sess.StartedAt) {
		log.Printf("[Pipeline] Run %s: newest recording %s predates the call", runID, rec.Name)
		p.notify(gen, domain.LevelError, "No Recording Found", "No new recording appeared after the call")
		return
	}

	upload, err := p.ledgerEntry(ctx, sess, rec)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyUploaded) {
			p.notify(gen, domain.LevelInfo, "Already Uploaded", rec.Name+" was already uploaded")
			return
		}
		log.Printf("[Pipeline] Run %s: ledger error: %v", runID, err)
		p.notify(gen, domain.LevelError, "Upload Failed", "Could not record the upload locally")
		return
	}

	p.transition(gen, domain.StateUploading)
	log.Printf("[Pipeline] Run %s: uploading %s for ticket %s, profile %s", runID, rec.Path, sess.TicketID, sess.ProfileID)

	if err := p.upload(ctx, upload); err != nil {
		p.reportUploadError(ctx, gen, err)
		return
	}
	p.notify(gen, domain.LevelSuccess, "Recording Uploaded", rec.Name+" uploaded successfully")
}

// ledgerEntry возвращает запись журнала для файла или ErrAlreadyUploaded.
// Неудачную попытку для той же пары ticket/profile можно повторить.
func (p *PipelineService) ledgerEntry(ctx context.Context, sess domain.CallSession, rec *domain.RecordingFile) (*domain.Upload, error) {
	existing, err := p.deps.Uploads.FindByFile(ctx, rec.Path, rec.ModifiedAt)
	switch {
	case err == nil:
		if existing.Status == domain.UploadStatusFailed &&
			existing.TicketID == sess.TicketID && existing.ProfileID == sess.ProfileID {
			return existing, nil
		}
		return nil, domain.ErrAlreadyUploaded
	case errors.Is(err, repository.ErrUploadNotFound):
	default:
		return nil, err
	}

	upload := &domain.Upload{
		TicketID:   sess.TicketID,
		ProfileID:  sess.ProfileID,
		FilePath:   rec.Path,
		FileName:   rec.Name,
		SizeBytes:  rec.SizeBytes,
		ModifiedAt: rec.ModifiedAt,
	}
	if err := p.deps.Uploads.Create(ctx, upload); err != nil {
		return nil, err
	}
	return upload, nil
}

// upload отправляет файл с заданным числом попыток и фиксирует каждую в журнале
func (p *PipelineService) upload(ctx context.Context, upload *domain.Upload) error {
	path := upload.FilePath
	if p.deps.Transcoder.NeedsTranscode(path) {
		converted, err := p.deps.Transcoder.ToM4A(ctx, path)
		if err != nil {
			log.Printf("[Pipeline] Transcoding %s failed, sending original: %v", upload.FileName, err)
		} else {
			defer os.Remove(converted)
			path = converted
		}
	}

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(p.opts.RetryBackoff * time.Duration(attempt-1)):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", domain.ErrUpload, ctx.Err())
			}
		}

		_, err := p.deps.Uploader.UploadRecording(ctx, upload.TicketID, upload.ProfileID, path)
		if err == nil {
			if markErr := p.deps.Uploads.MarkAttempt(ctx, upload.ID, domain.UploadStatusUploaded, nil); markErr != nil {
				log.Printf("[Pipeline] Failed to mark upload %s as uploaded: %v", upload.ID, markErr)
			}
			upload.Status = domain.UploadStatusUploaded
			p.archive(ctx, upload)
			return nil
		}

		lastErr = err
		log.Printf("[Pipeline] Upload attempt %d/%d for %s failed: %v", attempt, p.opts.MaxAttempts, upload.FileName, err)
		if markErr := p.deps.Uploads.MarkAttempt(ctx, upload.ID, domain.UploadStatusFailed, err); markErr != nil {
			log.Printf("[Pipeline] Failed to record upload attempt %s: %v", upload.ID, markErr)
		}
		upload.Status = domain.UploadStatusFailed
		if errors.Is(err, domain.ErrAuthExpired) {
			break
		}
	}
	return lastErr
}

func (p *PipelineService) archive(ctx context.Context, upload *domain.Upload) {
	if p.deps.Archive == nil {
		return
	}
	if _, err := p.deps.Archive.Archive(ctx, upload); err != nil {
		log.Printf("[Pipeline] Warning: archive copy of %s failed: %v", upload.FileName, err)
	}
}

// Retry повторяет неудачную отправку из журнала вне цикла звонка
func (p *PipelineService) Retry(ctx context.Context, id uuid.UUID) (*domain.Upload, error) {
	upload, err := p.deps.Uploads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upload.Status == domain.UploadStatusUploaded {
		return upload, domain.ErrAlreadyUploaded
	}
	if _, err := p.deps.Locator.Stat(upload.FilePath); err != nil {
		return upload, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	if err := p.upload(ctx, upload); err != nil {
		p.reportUploadError(ctx, 0, err)
		return upload, err
	}
	p.deps.Notifier.Success("Recording Uploaded", upload.FileName+" uploaded successfully")

	if refreshed, err := p.deps.Uploads.GetByID(ctx, id); err == nil {
		upload = refreshed
	}
	return upload, nil
}

// Forget удаляет запись из журнала вместе с архивной копией, чтобы файл можно было отправить заново,
// например под другой вакансией
func (p *PipelineService) Forget(ctx context.Context, id uuid.UUID) error {
	upload, err := p.deps.Uploads.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if upload.ArchiveKey != nil && *upload.ArchiveKey != "" {
		if p.deps.Archive == nil {
			log.Printf("[Pipeline] Archive disabled, copy %s of upload %s left in place", *upload.ArchiveKey, id)
		} else if err := p.deps.Archive.Remove(ctx, *upload.ArchiveKey); err != nil {
			return fmt.Errorf("failed to remove archive copy: %w", err)
		}
	}

	if err := p.deps.Uploads.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[Pipeline] Upload %s (%s) removed from the ledger", id, upload.FileName)
	return nil
}

func (p *PipelineService) reportResolveError(gen uint64, runID uuid.UUID, err error) {
	log.Printf("[Pipeline] Run %s: no recording to upload: %v", runID, err)
	switch {
	case errors.Is(err, domain.ErrConfigurationMissing):
		p.notify(gen, domain.LevelInfo, "Recordings Folder Not Set", "Set your call recordings folder in settings")
	case errors.Is(err, domain.ErrRecordingNotFound):
		p.notify(gen, domain.LevelError, "No Recording Found", "No call recording was found in the recordings folder")
	case errors.Is(err, domain.ErrAuthExpired):
		p.notify(gen, domain.LevelError, "Session Expired", "Please log in again")
	default:
		p.notify(gen, domain.LevelError, "Upload Failed", "Could not locate the call recording")
	}
}

// reportUploadError; gen == 0 - ручной повтор, уведомление всегда показывается
func (p *PipelineService) reportUploadError(ctx context.Context, gen uint64, err error) {
	if errors.Is(err, domain.ErrAuthExpired) {
		if p.deps.OnAuthExpired != nil {
			p.deps.OnAuthExpired(ctx)
		}
		p.notify(gen, domain.LevelError, "Session Expired", "Please log in again to upload recordings")
		return
	}
	p.notify(gen, domain.LevelError, "Upload Failed", "Failed to upload the call recording")
}

func (p *PipelineService) transition(gen uint64, state domain.PipelineState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return
	}
	p.state = state
}

func (p *PipelineService) notify(gen uint64, level domain.NotificationLevel, title, message string) {
	if gen != 0 {
		p.mu.Lock()
		current := gen == p.generation
		p.mu.Unlock()
		if !current {
			log.Printf("[Pipeline] Discarding notification from detached pipeline: %s", title)
			return
		}
	}

	switch level {
	case domain.LevelSuccess:
		p.deps.Notifier.Success(title, message)
	case domain.LevelInfo:
		p.deps.Notifier.Info(title, message)
	default:
		p.deps.Notifier.Error(title, message)
	}
}
