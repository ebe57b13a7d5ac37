package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
)

// Box is a face bounding box in pixels.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Face is one detected face with facial action unit intensities in [0,1],
// keyed "AU01", "AU04", ...
type Face struct {
	Box         Box                `json:"box"`
	ActionUnits map[string]float64 `json:"action_units"`
}

type FacesResp struct {
	Faces []Face `json:"faces"`
}

// Faces uploads one image frame to /faces.
func (h *HTTP) Faces(ctx context.Context, url string, image []byte) (*FacesResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("image", "frame")
	if err != nil {
		return nil, err
	}
	if _, err = fw.Write(image); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/faces", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("faces %s: %s", resp.Status, errBody(resp.Body))
	}

	var out FacesResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("faces decode: %w", err)
	}
	return &out, nil
}
