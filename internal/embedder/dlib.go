//go:build dlib

package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facefolio/internal/types"
)

// DlibEngine runs dlib in-process through go-face.
// The models dir must hold shape_predictor_5_face_landmarks.dat and
// dlib_face_recognition_resnet_model_v1.dat.
type DlibEngine struct {
	rec *face.Recognizer
	mu  sync.Mutex
}

// NewDlibFactory loads the models once per engine.
func NewDlibFactory(modelsDir string) Factory {
	return func(ctx context.Context, id int) (Engine, error) {
		rec, err := face.NewRecognizer(modelsDir)
		if err != nil {
			return nil, fmt.Errorf("engine %d failed to load dlib models: %w", id, err)
		}
		return &DlibEngine{rec: rec}, nil
	}
}

func (e *DlibEngine) DetectFaces(ctx context.Context, imageData []byte) ([]types.FaceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	faces, err := e.rec.Recognize(imageData)
	if err != nil {
		// go-face only fails on decode or detection errors for this image.
		return nil, &ItemError{Engine: "dlib engine", Msg: err.Error()}
	}

	out := make([]types.FaceResult, len(faces))
	for i, f := range faces {
		vec := make(types.Embedding, len(f.Descriptor))
		for j, v := range f.Descriptor {
			vec[j] = float64(v)
		}
		r := f.Rectangle
		out[i] = types.FaceResult{
			Loc: types.BoundingBox{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X},
			Vec: vec,
		}
	}
	return out, nil
}

func (e *DlibEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
}
