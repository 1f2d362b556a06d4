package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/adrive-go/internal/adrive"
	"github.com/tonimelisma/adrive-go/internal/driveid"
	"github.com/tonimelisma/adrive-go/pkg/adrivehash"
)

// State is a step of the create handshake.
type State int

// Negotiation states. RapidUpload and NeedsMultipart are terminal.
const (
	StateStart State = iota
	StatePreHashChecked
	StateContentHashChecked
	StateRapidUpload
	StateNeedsMultipart
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StatePreHashChecked:
		return "PreHashChecked"
	case StateContentHashChecked:
		return "ContentHashChecked"
	case StateRapidUpload:
		return "RapidUpload"
	case StateNeedsMultipart:
		return "NeedsMultipart"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further create calls follow s.
func (s State) Terminal() bool {
	return s == StateRapidUpload || s == StateNeedsMultipart
}

// Outcome is the result of a negotiation: *RapidMatch or *NeedsUpload.
type Outcome interface {
	State() State
}

// RapidMatch means the server aliased existing content; nothing to send.
type RapidMatch struct {
	FileID   string
	FileName string
}

// State returns StateRapidUpload.
func (*RapidMatch) State() State { return StateRapidUpload }

// NeedsUpload carries the session whose parts must be sent.
type NeedsUpload struct {
	Session *UploadSession
}

// State returns StateNeedsMultipart.
func (*NeedsUpload) State() State { return StateNeedsMultipart }

// NegotiateRequest describes the local file being offered.
type NegotiateRequest struct {
	ParentFileID string
	Name         string
	Size         int64
	Content      Content
}

// Negotiator drives the create handshake for one drive. Hashes are
// recomputed on every call; nothing is cached between attempts.
type Negotiator struct {
	api              FileCreator
	driveID          driveid.ID
	partSize         int64
	preHashThreshold int64
	checkNameMode    adrive.CheckNameMode
	logger           *slog.Logger

	// onTransition observes every state change. Tests only.
	onTransition func(from, to State)
}

// NewNegotiator creates a Negotiator using the part size, pre-hash
// threshold and name policy from opts.
func NewNegotiator(api FileCreator, driveID driveid.ID, opts Options, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}

	opts = opts.withDefaults()

	return &Negotiator{
		api:              api,
		driveID:          driveID,
		partSize:         opts.PartSize,
		preHashThreshold: opts.PreHashThreshold,
		checkNameMode:    opts.CheckNameMode,
		logger:           logger,
	}
}

// Negotiate runs the handshake until a terminal state. Files smaller than
// the pre-hash threshold start directly with the content hash. Errors from
// the server wrap ErrNegotiation and name the phase; the caller may retry
// from the start.
func (n *Negotiator) Negotiate(ctx context.Context, req NegotiateRequest) (Outcome, error) {
	plan, err := NewPlan(req.Size, UploadPartSize(req.Size, n.partSize))
	if err != nil {
		return nil, err
	}

	base := adrive.CreateFileRequest{
		DriveID:       n.driveID,
		ParentFileID:  req.ParentFileID,
		Name:          req.Name,
		Type:          "file",
		CheckNameMode: n.checkNameMode,
		Size:          req.Size,
	}

	a := &attempt{Negotiator: n, req: req, base: base, plan: plan}
	state := StateStart

	for !state.Terminal() {
		var next State

		switch state {
		case StateStart:
			next, err = a.preHashPhase(ctx)
		case StatePreHashChecked:
			next, err = a.contentHashPhase(ctx)
		case StateContentHashChecked:
			next = terminalFor(a.created)
		default:
			err = fmt.Errorf("unexpected state %s", state)
		}

		if err != nil {
			return nil, err
		}

		n.transition(state, next)
		state = next
	}

	created := a.created

	if state == StateRapidUpload {
		n.logger.Info("rapid upload matched",
			slog.String("file_id", created.FileID),
			slog.String("name", created.FileName),
			slog.Int64("size", req.Size),
		)

		return &RapidMatch{FileID: created.FileID, FileName: created.FileName}, nil
	}

	session := NewUploadSession(n.driveID, created.FileID, created.UploadID, created.FileName, plan)
	session.ContentHash = a.contentHash
	session.setURLs(created.PartInfoList)

	n.logger.Debug("multipart upload required",
		slog.String("file_id", created.FileID),
		slog.String("upload_id", created.UploadID),
		slog.Int("parts", plan.Len()),
	)

	return &NeedsUpload{Session: session}, nil
}

// attempt is the state of one Negotiate call.
type attempt struct {
	*Negotiator

	req         NegotiateRequest
	base        adrive.CreateFileRequest
	plan        *Plan
	contentHash string
	created     *adrive.FileCreated
}

func (n *Negotiator) transition(from, to State) {
	n.logger.Debug("negotiation transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)

	if n.onTransition != nil {
		n.onTransition(from, to)
	}
}

// preHashPhase offers the digest of the first kilobyte. PreHashMatched
// moves on to the content hash; a created file ends the handshake.
func (a *attempt) preHashPhase(ctx context.Context) (State, error) {
	if a.req.Size < a.preHashThreshold {
		a.logger.Debug("skipping pre-hash for small file",
			slog.Int64("size", a.req.Size),
			slog.Int64("threshold", a.preHashThreshold),
		)

		return StatePreHashChecked, nil
	}

	preHash, err := adrivehash.PreHash(a.req.Content)
	if err != nil {
		return 0, fmt.Errorf("transfer: pre-hash of %s: %w", a.req.Name, err)
	}

	body := a.base
	body.PreHash = preHash

	resp, err := a.api.CreateFile(ctx, &body)
	if err != nil {
		return 0, negotiationError(StateStart, err)
	}

	switch r := resp.(type) {
	case adrive.PreHashMatched:
		return StatePreHashChecked, nil
	case *adrive.FileCreated:
		a.created = r

		return terminalFor(r), nil
	default:
		return 0, negotiationError(StateStart, fmt.Errorf("%w: unexpected create response %T", adrive.ErrMalformedResponse, resp))
	}
}

// contentHashPhase offers the full content hash and the proof code along
// with the planned part list.
func (a *attempt) contentHashPhase(ctx context.Context) (State, error) {
	contentHash, err := adrivehash.ContentHash(a.req.Content)
	if err != nil {
		return 0, fmt.Errorf("transfer: content hash of %s: %w", a.req.Name, err)
	}

	token, err := a.api.AccessToken()
	if err != nil {
		return 0, negotiationError(StatePreHashChecked, err)
	}

	proof, err := adrivehash.ProofCode(a.req.Content, a.req.Size, token)
	if err != nil {
		return 0, fmt.Errorf("transfer: proof code of %s: %w", a.req.Name, err)
	}

	a.contentHash = contentHash

	body := a.base
	body.ContentHash = contentHash
	body.ContentHashName = adrivehash.Name
	body.ProofCode = proof
	body.ProofVersion = adrivehash.ProofVersion

	for _, num := range a.plan.partNumbers() {
		body.PartInfoList = append(body.PartInfoList, adrive.PartInfo{PartNumber: num})
	}

	resp, err := a.api.CreateFile(ctx, &body)
	if err != nil {
		return 0, negotiationError(StatePreHashChecked, err)
	}

	r, ok := resp.(*adrive.FileCreated)
	if !ok {
		return 0, negotiationError(StatePreHashChecked,
			fmt.Errorf("%w: %T in content-hash phase", adrive.ErrMalformedResponse, resp))
	}

	a.created = r

	return StateContentHashChecked, nil
}

func terminalFor(created *adrive.FileCreated) State {
	if created.RapidUpload {
		return StateRapidUpload
	}

	return StateNeedsMultipart
}
