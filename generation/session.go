package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dripapi/models"
	"dripapi/services"
)

type FlowStatus string

const (
	FlowIdle       FlowStatus = "idle"
	FlowModerating FlowStatus = "moderating"
	FlowCropping   FlowStatus = "cropping"
	FlowLoading    FlowStatus = "loading"
	FlowDone       FlowStatus = "done"
	FlowError      FlowStatus = "error"
)

type AngleStatus string

const (
	AnglePending    AngleStatus = "pending"
	AngleGenerating AngleStatus = "generating"
	AngleDone       AngleStatus = "done"
	AngleError      AngleStatus = "error"
)

const quotaErrorMessage = "Daily generation limit reached. Please try again tomorrow."

const devModeDelay = 1500 * time.Millisecond

// Result is the finished pipeline output handed to the save path.
type Result struct {
	// PNG renders in Front, Right, Back, Left order
	Images      [][]byte
	Category    string
	Description string
}

// Session is one user's in-memory generation flow. It is never persisted,
// so a process restart drops it. All state is guarded by mu, and
// every async completion re-checks epoch under the lock so work started
// before a reset or cancel can never touch the session again.
type Session struct {
	mu    sync.Mutex
	epoch uint64

	imageService services.ImageServiceProvider
	devMode      bool

	userName       string
	styleSignature string

	flowStatus    FlowStatus
	currentAngle  services.Angle
	images        map[services.Angle][]byte
	angleStatuses map[services.Angle]AngleStatus
	statusText    string
	progress      int
	errMessage    *string

	category    string
	description string
}

func newSession(imageService services.ImageServiceProvider, devMode bool) *Session {
	s := &Session{
		imageService: imageService,
		devMode:      devMode,
	}
	s.resetLocked()
	return s
}

// resetLocked wipes the observable state and bumps the epoch, orphaning any
// in-flight pipeline goroutine. Callers hold mu.
func (s *Session) resetLocked() {
	s.epoch++
	s.flowStatus = FlowIdle
	s.currentAngle = ""
	s.images = map[services.Angle][]byte{}
	s.angleStatuses = map[services.Angle]AngleStatus{}
	s.statusText = ""
	s.progress = 0
	s.errMessage = nil
	s.category = ""
	s.description = ""
}

// Reset returns the session to idle from any state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// CancelCrop abandons the flow before generation starts.
func (s *Session) CancelCrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// SelectFile moderates the uploaded photo and moves the flow to cropping.
// Dev mode skips moderation entirely.
func (s *Session) SelectFile(ctx context.Context, image []byte, mimeType string) error {
	s.mu.Lock()
	if s.flowStatus != FlowIdle && s.flowStatus != FlowError {
		s.mu.Unlock()
		return fmt.Errorf("a generation flow is already in progress")
	}
	s.resetLocked()

	if s.devMode {
		s.flowStatus = FlowCropping
		s.mu.Unlock()
		return nil
	}

	if !s.imageService.IsConfigured() {
		s.applyFailureLocked(services.ErrServiceUnavailable, "Service Unavailable", "")
		s.mu.Unlock()
		return services.ErrServiceUnavailable
	}

	epoch := s.epoch
	s.flowStatus = FlowModerating
	s.statusText = "Analyzing your image..."
	s.mu.Unlock()

	moderation, err := s.imageService.ModerateImage(ctx, image, mimeType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// the session was reset while we were moderating
		return nil
	}
	if err != nil {
		s.applyFailureLocked(err, "Analysis Failed", "")
		return err
	}
	if !moderation.IsValid {
		s.flowStatus = FlowError
		s.errMessage = services.StrPointer(moderation.Reason)
		s.statusText = "Image Rejected"
		return nil
	}
	s.flowStatus = FlowCropping
	s.statusText = ""
	return nil
}

// ConfirmCrop receives the cropped image and launches the angle pipeline.
func (s *Session) ConfirmCrop(ctx context.Context, cropped []byte, userName, styleSignature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flowStatus != FlowCropping {
		return fmt.Errorf("nothing to generate, select an image first")
	}

	s.userName = userName
	s.styleSignature = styleSignature
	s.flowStatus = FlowLoading
	s.currentAngle = services.AngleFront
	s.images = map[services.Angle][]byte{}
	s.angleStatuses = map[services.Angle]AngleStatus{
		services.AngleFront: AngleGenerating,
		services.AngleRight: AnglePending,
		services.AngleBack:  AnglePending,
		services.AngleLeft:  AnglePending,
	}
	s.statusText = "Initializing..."
	s.progress = 0
	s.errMessage = nil

	go s.run(context.WithoutCancel(ctx), s.epoch, cropped)
	return nil
}

// run drives the pipeline: four strictly sequential angle generations, then
// categorization and description. Right, Back and Left are derived from the
// generated Front result, never from the source photo.
func (s *Session) run(ctx context.Context, epoch uint64, cropped []byte) {
	var frontView []byte

	for i, angle := range services.AllAngles {
		var image []byte
		var err error
		if s.devMode {
			time.Sleep(devModeDelay)
			image = cropped
		} else if angle == services.AngleFront {
			image, err = s.imageService.GenerateFrontView(ctx, cropped, "image/jpeg")
		} else {
			image, err = s.imageService.GenerateAngleView(ctx, frontView, angle)
		}

		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.applyFailureLocked(err, fmt.Sprintf("Error generating %s view", angle), angle)
			s.mu.Unlock()
			return
		}
		s.images[angle] = image
		s.angleStatuses[angle] = AngleDone
		if next := i + 1; next < len(services.AllAngles) {
			nextAngle := services.AllAngles[next]
			s.currentAngle = nextAngle
			s.angleStatuses[nextAngle] = AngleGenerating
			s.statusText = fmt.Sprintf("Generating %s view...", nextAngle)
			s.progress = next * 80 / len(services.AllAngles)
		} else {
			s.statusText = "Analyzing style..."
			s.progress = 90
		}
		s.mu.Unlock()

		if angle == services.AngleFront {
			frontView = image
		}
	}

	// finalization: categorize then describe off the front view
	var category string
	var err error
	if s.devMode {
		category = string(models.CategoryCasual)
	} else {
		category, err = s.imageService.CategorizeOutfit(ctx, frontView)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.applyFailureLocked(err, "Finalization Failed", "")
		s.mu.Unlock()
		return
	}
	s.category = category
	s.statusText = "Crafting your style profile..."
	s.progress = 95
	userName := s.userName
	styleSignature := s.styleSignature
	s.mu.Unlock()

	var description string
	if s.devMode {
		description = fmt.Sprintf("This mock description for your %s outfit suggests pairing it with classic white sneakers for a relaxed vibe, or ankle boots to dress it up. Perfect for a day out!", category)
	} else {
		if userName == "" {
			userName = "friend"
		}
		description, err = s.imageService.DescribeOutfit(ctx, frontView, category, styleSignature, userName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	if err != nil {
		s.applyFailureLocked(err, "Finalization Failed", "")
		return
	}
	s.description = description
	s.flowStatus = FlowDone
	s.statusText = ""
	s.progress = 100
}

// applyFailureLocked records a failure. Quota exhaustion aborts the whole
// flow with its own message; any other error on an angle marks just that
// angle and freezes progress where it is. Callers hold mu.
func (s *Session) applyFailureLocked(err error, statusText string, angle services.Angle) {
	if IsQuotaError(err) {
		s.flowStatus = FlowError
		s.errMessage = services.StrPointer(quotaErrorMessage)
		s.statusText = "Limit Reached"
		return
	}
	s.errMessage = services.StrPointer(err.Error())
	s.statusText = statusText
	if angle != "" {
		s.angleStatuses[angle] = AngleError
	} else {
		s.flowStatus = FlowError
	}
}

// Save hands out the finished result. The session stays done until reset so
// a failed persistence attempt can retry.
func (s *Session) Save() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flowStatus != FlowDone {
		return nil, fmt.Errorf("generation is not finished")
	}

	images := make([][]byte, 0, len(services.AllAngles))
	for _, angle := range services.AllAngles {
		image, ok := s.images[angle]
		if !ok {
			return nil, fmt.Errorf("missing %s view", angle)
		}
		images = append(images, image)
	}
	return &Result{
		Images:      images,
		Category:    s.category,
		Description: s.description,
	}, nil
}

// Status snapshots the observable session state.
func (s *Session) Status() models.GeneratorStatusOut {
	s.mu.Lock()
	defer s.mu.Unlock()

	images := make(map[string]string, len(s.images))
	for angle, image := range s.images {
		images[string(angle)] = services.EncodeImageDataURL(image, "image/png")
	}
	angleStatuses := make(map[string]string, len(s.angleStatuses))
	for angle, status := range s.angleStatuses {
		angleStatuses[string(angle)] = string(status)
	}
	return models.GeneratorStatusOut{
		FlowStatus:    string(s.flowStatus),
		CurrentAngle:  string(s.currentAngle),
		StatusText:    s.statusText,
		Progress:      s.progress,
		Images:        images,
		AngleStatuses: angleStatuses,
		Error:         s.errMessage,
	}
}
