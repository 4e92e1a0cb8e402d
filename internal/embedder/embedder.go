// Package embedder is the boundary to the face detection and embedding model.
// The model itself is external; engines only translate images into FaceResults.
package embedder

import (
	"context"
	"errors"

	"github.com/andresmejia3/facefolio/internal/types"
)

// Engine detects every face in an encoded image and embeds each one.
// Faces are returned in the model's detection order.
type Engine interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]types.FaceResult, error)
	Close()
}

// Factory starts engine number id. Engines are not shared between goroutines.
type Factory func(ctx context.Context, id int) (Engine, error)

// ErrNoFace is returned by FirstFace when the image contains no detectable face.
var ErrNoFace = errors.New("no face detected")

// ItemError is a failure confined to one image (corrupt file, undecodable format).
// The engine stays usable; the batch continues.
type ItemError struct {
	Engine string
	Msg    string
}

func (e *ItemError) Error() string {
	return e.Engine + " error: " + e.Msg
}

// IsItemError reports whether err only affects the image that produced it.
func IsItemError(err error) bool {
	var ie *ItemError
	return errors.As(err, &ie)
}

// FirstFace returns the first face of a detection result (reference photos).
func FirstFace(faces []types.FaceResult) (types.FaceResult, error) {
	if len(faces) == 0 {
		return types.FaceResult{}, ErrNoFace
	}
	return faces[0], nil
}
