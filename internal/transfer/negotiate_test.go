package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/adrive-go/internal/adrive"
	"github.com/tonimelisma/adrive-go/pkg/adrivehash"
)

func negotiatorFor(api FileCreator, threshold int64) (*Negotiator, *[][2]State) {
	opts := DefaultOptions()
	opts.PartSize = 100
	opts.PreHashThreshold = threshold

	n := NewNegotiator(api, testDrive, opts, testLogger())

	var seen [][2]State
	n.onTransition = func(from, to State) {
		seen = append(seen, [2]State{from, to})
	}

	return n, &seen
}

// matchThenRapid answers the pre-hash with PreHashMatched and the content
// hash with a rapid upload.
func matchThenRapid(req *adrive.CreateFileRequest) (adrive.CreateFileResponse, error) {
	if req.PreHash != "" {
		return adrive.PreHashMatched{RequestID: "r1"}, nil
	}

	return &adrive.FileCreated{FileID: "existing", FileName: req.Name, RapidUpload: true}, nil
}

func TestNegotiate_PreHashMatchedThenRapid(t *testing.T) {
	t.Parallel()

	data := patterned(5000)
	fake := newFakeDrive()
	fake.onCreate = matchThenRapid
	n, seen := negotiatorFor(fake, 0)

	out, err := n.Negotiate(context.Background(), NegotiateRequest{
		ParentFileID: "root", Name: "a.bin", Size: int64(len(data)), Content: openTemp(t, data),
	})
	require.NoError(t, err)

	rapid, ok := out.(*RapidMatch)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, "existing", rapid.FileID)
	assert.Equal(t, StateRapidUpload, out.State())

	require.Len(t, fake.creates, 2)

	first := fake.creates[0]
	assert.Equal(t, adrivehash.Hex(sha1Of(data[:adrivehash.PreHashSize])), first.PreHash)
	assert.Empty(t, first.ContentHash)
	assert.Empty(t, first.PartInfoList, "pre-hash create carries no part list")
	assert.Equal(t, testDrive, first.DriveID)
	assert.Equal(t, "root", first.ParentFileID)
	assert.Equal(t, adrive.CheckNameAutoRename, first.CheckNameMode)

	second := fake.creates[1]
	assert.Empty(t, second.PreHash)
	assert.Equal(t, adrivehash.Hex(sha1Of(data)), second.ContentHash)
	assert.Equal(t, adrivehash.Name, second.ContentHashName)
	assert.Equal(t, adrivehash.ProofVersion, second.ProofVersion)
	assert.NotEmpty(t, second.ProofCode)
	assert.Len(t, second.PartInfoList, 50)
	assert.Equal(t, int64(5000), second.Size)

	assert.Equal(t, [][2]State{
		{StateStart, StatePreHashChecked},
		{StatePreHashChecked, StateContentHashChecked},
		{StateContentHashChecked, StateRapidUpload},
	}, *seen)
}

func TestNegotiate_FileCreatedOnPreHashEndsHandshake(t *testing.T) {
	t.Parallel()

	fake := newFakeDrive()
	fake.onCreate = func(*adrive.CreateFileRequest) (adrive.CreateFileResponse, error) {
		return &adrive.FileCreated{
			FileID: "f9", UploadID: "u9", FileName: "b.bin",
			PartInfoList: []adrive.PartInfo{{PartNumber: 1, UploadURL: "https://u/1"}, {PartNumber: 7, UploadURL: "https://u/7"}},
		}, nil
	}
	n, seen := negotiatorFor(fake, 0)

	out, err := n.Negotiate(context.Background(), NegotiateRequest{
		ParentFileID: "root", Name: "b.bin", Size: 250, Content: openTemp(t, patterned(250)),
	})
	require.NoError(t, err)

	need, ok := out.(*NeedsUpload)
	require.True(t, ok, "got %T", out)
	assert.Len(t, fake.creates, 1)
	assert.Equal(t, [][2]State{{StateStart, StateNeedsMultipart}}, *seen)

	s := need.Session
	assert.Equal(t, "f9", s.FileID)
	assert.Equal(t, "u9", s.UploadID)
	assert.Empty(t, s.ContentHash)
	require.Equal(t, 3, s.Plan.Len())

	pending := s.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "https://u/1", pending[0].UploadURL)
	assert.Empty(t, pending[1].UploadURL)
	assert.Empty(t, pending[2].UploadURL)
}

func TestNegotiate_SmallFileSkipsPreHash(t *testing.T) {
	t.Parallel()

	fake := newFakeDrive()
	n, seen := negotiatorFor(fake, 1000)

	out, err := n.Negotiate(context.Background(), NegotiateRequest{
		ParentFileID: "root", Name: "s.bin", Size: 999, Content: openTemp(t, patterned(999)),
	})
	require.NoError(t, err)

	require.Len(t, fake.creates, 1)
	assert.Empty(t, fake.creates[0].PreHash)
	assert.NotEmpty(t, fake.creates[0].ContentHash)

	need, ok := out.(*NeedsUpload)
	require.True(t, ok)
	assert.Equal(t, fake.creates[0].ContentHash, need.Session.ContentHash)

	assert.Equal(t, [][2]State{
		{StateStart, StatePreHashChecked},
		{StatePreHashChecked, StateContentHashChecked},
		{StateContentHashChecked, StateNeedsMultipart},
	}, *seen)
}

func TestNegotiate_ThresholdIsInclusiveForPreHash(t *testing.T) {
	t.Parallel()

	fake := newFakeDrive()
	n, _ := negotiatorFor(fake, 1000)

	_, err := n.Negotiate(context.Background(), NegotiateRequest{
		ParentFileID: "root", Name: "s.bin", Size: 1000, Content: openTemp(t, patterned(1000)),
	})
	require.NoError(t, err)

	require.Len(t, fake.creates, 2)
	assert.NotEmpty(t, fake.creates[0].PreHash)
}

func TestNegotiate_ZeroByteFile(t *testing.T) {
	t.Parallel()

	fake := newFakeDrive()
	fake.onCreate = matchThenRapid
	n, seen := negotiatorFor(fake, 0)

	out, err := n.Negotiate(context.Background(), NegotiateRequest{
		ParentFileID: "root", Name: "empty", Size: 0, Content: openTemp(t, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, StateRapidUpload, out.State())

	require.Len(t, fake.creates, 2)
	assert.Equal(t, adrivehash.Hex(sha1Of(nil)), fake.creates[0].PreHash)
	assert.Empty(t, fake.creates[1].ProofCode)
	assert.Len(t, fake.creates[1].PartInfoList, 1)
	assert.True(t, (*seen)[len(*seen)-1][1].Terminal())
}

func TestNegotiate_PreHashMatchedInContentPhaseIsAnError(t *testing.T) {
	t.Parallel()

	fake := newFakeDrive()
	fake.onCreate = func(*adrive.CreateFileRequest) (adrive.CreateFileResponse, error) {
		return adrive.PreHashMatched{}, nil
	}
	n, _ := negotiatorFor(fake, 0)

	_, err := n.Negotiate(context.Background(), NegotiateRequest{
		ParentFileID: "root", Name: "x", Size: 10, Content: openTemp(t, patterned(10)),
	})
	require.ErrorIs(t, err, ErrNegotiation)
	require.ErrorIs(t, err, adrive.ErrMalformedResponse)
	assert.Contains(t, err.Error(), "PreHashChecked")
	assert.Len(t, fake.creates, 2, "no further calls after the content phase")
}

func TestNegotiate_ServerErrorNamesPhase(t *testing.T) {
	t.Parallel()

	fake := newFakeDrive()
	fake.onCreate = func(*adrive.CreateFileRequest) (adrive.CreateFileResponse, error) {
		return nil, &adrive.APIError{StatusCode: 403, Code: "Forbidden", Err: adrive.ErrForbidden}
	}
	n, seen := negotiatorFor(fake, 0)

	_, err := n.Negotiate(context.Background(), NegotiateRequest{
		ParentFileID: "root", Name: "x", Size: 10, Content: openTemp(t, patterned(10)),
	})
	require.ErrorIs(t, err, ErrNegotiation)
	require.ErrorIs(t, err, adrive.ErrForbidden)
	assert.Contains(t, err.Error(), "Start")
	assert.Len(t, fake.creates, 1, "the negotiator does not retry")
	assert.Empty(t, *seen)
}

func TestNegotiate_RecomputesHashesEveryAttempt(t *testing.T) {
	t.Parallel()

	fake := newFakeDrive()
	fake.onCreate = matchThenRapid
	n, _ := negotiatorFor(fake, 0)
	content := openTemp(t, patterned(3000))

	req := NegotiateRequest{ParentFileID: "root", Name: "r", Size: 3000, Content: content}

	_, err := n.Negotiate(context.Background(), req)
	require.NoError(t, err)

	fake.token = "rotated-token"

	_, err = n.Negotiate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, fake.creates, 4)
	assert.Equal(t, fake.creates[0].PreHash, fake.creates[2].PreHash)
	assert.Equal(t, fake.creates[1].ContentHash, fake.creates[3].ContentHash)

	first, err := adrivehash.ProofCode(content, 3000, "access-token")
	require.NoError(t, err)
	second, err := adrivehash.ProofCode(content, 3000, "rotated-token")
	require.NoError(t, err)

	assert.Equal(t, first, fake.creates[1].ProofCode)
	assert.Equal(t, second, fake.creates[3].ProofCode)
}

func TestNegotiate_TokenFailure(t *testing.T) {
	t.Parallel()

	fake := &tokenlessCreator{fakeDrive: newFakeDrive()}
	n, _ := negotiatorFor(fake, 1<<20)

	_, err := n.Negotiate(context.Background(), NegotiateRequest{
		ParentFileID: "root", Name: "x", Size: 10, Content: openTemp(t, patterned(10)),
	})
	require.ErrorIs(t, err, ErrNegotiation)
	require.ErrorIs(t, err, adrive.ErrNotLoggedIn)
	assert.Empty(t, fake.creates)
}

type tokenlessCreator struct {
	*fakeDrive
}

func (*tokenlessCreator) AccessToken() (string, error) {
	return "", adrive.ErrNotLoggedIn
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NeedsMultipart", StateNeedsMultipart.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.False(t, StateContentHashChecked.Terminal())
	assert.True(t, StateRapidUpload.Terminal())
}
