package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hazyhaar/glotfile/engine"
	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/safeio"
	"github.com/hazyhaar/glotfile/shield"
)

var errBusy = errors.New("server busy, retry shortly")

// errTooLarge is a file over its type ceiling; it maps to 413.
type errTooLarge struct{ msg string }

func (e *errTooLarge) Error() string { return e.msg }

const maxFieldBytes = 1 << 10

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     Version,
		"maintenance": s.mm.Active(),
		"in_flight":   s.inFlight.Load(),
	})
}

// formatInfo lists Variants only for formats read in more than one
// encoding.
type formatInfo struct {
	Type      format.Type      `json:"type"`
	Label     string           `json:"label"`
	MIME      string           `json:"mime"`
	Extension string           `json:"extension"`
	Variants  []format.Variant `json:"variants,omitempty"`
	MaxBytes  int64            `json:"max_bytes"`
}

func (s *Server) handleCombinations(w http.ResponseWriter, _ *http.Request) {
	var formats []formatInfo
	for _, d := range s.eng.Formats() {
		formats = append(formats, formatInfo{
			Type:      d.Type,
			Label:     d.Type.Label(),
			MIME:      d.MIME,
			Extension: d.Extension,
			Variants:  d.Variants,
			MaxBytes:  s.cfg.Limits.Bytes(d.Type),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"combinations": engine.Combinations(),
		"formats":      formats,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := s.readForm(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.eng.Generate(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Filename}))
	h.Set("Content-Length", strconv.Itoa(len(out.Data)))
	h.Set("X-Polyglot-Anchor", string(out.Anchor))
	h.Set("X-Polyglot-Digest", out.Digest)
	if relaxed := out.Plan.Relaxed(); len(relaxed) > 0 {
		names := make([]string, len(relaxed))
		for i, t := range relaxed {
			names[i] = string(t)
		}
		h.Set("X-Polyglot-Relaxed", strings.Join(names, ","))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(out.Data)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, err := s.readForm(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.eng.Plan(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Summary())
}

// readForm streams the multipart body: fileN parts, the combination in
// "type" and optional "fileN_type" overrides. Each part is read up to the
// largest type ceiling; the per-type ceiling is checked once types are known.
func (s *Server) readForm(r *http.Request) (engine.Request, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return engine.Request{}, fmt.Errorf("%w: expected multipart/form-data: %v", format.ErrInvalidInput, err)
	}

	var (
		combination string
		files       = make(map[int]format.InputFile)
		declared    = make(map[int]string)
		largest     = s.cfg.Limits.Largest()
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return engine.Request{}, formError(err)
		}
		name := part.FormName()
		switch {
		case name == "type":
			v, err := readField(part)
			if err != nil {
				return engine.Request{}, err
			}
			combination = v
		case strings.HasPrefix(name, "file") && strings.HasSuffix(name, "_type"):
			n, ok := fileIndex(strings.TrimSuffix(name, "_type"))
			if !ok {
				break
			}
			v, err := readField(part)
			if err != nil {
				return engine.Request{}, err
			}
			declared[n] = v
		case strings.HasPrefix(name, "file"):
			n, ok := fileIndex(name)
			if !ok {
				break
			}
			if _, dup := files[n]; dup {
				return engine.Request{}, fmt.Errorf("%w: %s sent twice", format.ErrInvalidInput, name)
			}
			data, err := safeio.ReadAtMost(part, largest)
			if errors.Is(err, safeio.ErrTooLarge) {
				return engine.Request{}, &errTooLarge{fmt.Sprintf("%s exceeds %d MiB", name, largest>>20)}
			}
			if err != nil {
				return engine.Request{}, formError(err)
			}
			files[n] = format.InputFile{Name: safeio.BaseName(part.FileName()), Data: data}
		}
		part.Close()
	}

	if len(files) == 0 {
		return engine.Request{}, fmt.Errorf("%w: no files; send file1..file5", format.ErrInvalidInput)
	}
	req := engine.Request{Combination: combination}
	for i := 1; i <= len(files); i++ {
		f, ok := files[i]
		if !ok {
			return engine.Request{}, fmt.Errorf("%w: file%d missing; files must be numbered from file1 without gaps", format.ErrInvalidInput, i)
		}
		if v, ok := declared[i]; ok && v != "" {
			t, err := format.ParseType(v)
			if err != nil {
				return engine.Request{}, err
			}
			f.Type = t
		}
		req.Files = append(req.Files, f)
	}
	return req, s.checkLimits(req)
}

// checkLimits applies the per-type ceilings. Files whose type cannot be
// resolved are left to the engine, which rejects the request anyway.
func (s *Server) checkLimits(req engine.Request) error {
	var types []format.Type
	if req.Combination != "" {
		types, _ = engine.ResolveCombination(req.Combination)
	}
	for i, f := range req.Files {
		t := f.Type
		if t == "" && i < len(types) {
			t = types[i]
		}
		if t == "" {
			continue
		}
		if limit := s.cfg.Limits.Bytes(t); int64(len(f.Data)) > limit {
			return &errTooLarge{fmt.Sprintf("file%d exceeds the %d MiB limit for %s", i+1, limit>>20, t.Label())}
		}
	}
	return nil
}

func readField(part io.Reader) (string, error) {
	b, err := safeio.ReadAtMost(part, maxFieldBytes)
	if errors.Is(err, safeio.ErrTooLarge) {
		return "", fmt.Errorf("%w: form field too long", format.ErrInvalidInput)
	}
	if err != nil {
		return "", formError(err)
	}
	return strings.TrimSpace(string(b)), nil
}

// fileIndex parses "fileN" with N in 1..5.
func fileIndex(name string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "file"))
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}

func formError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &errTooLarge{fmt.Sprintf("request body exceeds %d bytes", mbe.Limit)}
	}
	return fmt.Errorf("%w: malformed multipart body: %v", format.ErrInvalidInput, err)
}

// status maps an engine or form error to its HTTP status. 4xx details are
// safe to show; 5xx details stay in the logs.
func status(err error) int {
	var tl *errTooLarge
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &tl), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, format.ErrInvalidInput), errors.Is(err, format.ErrUnsupportedStructure):
		return http.StatusBadRequest
	case errors.Is(err, format.ErrNoEmbedRegion), errors.Is(err, format.ErrNoValidOrdering):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	log := shield.GetLogger(r.Context())
	detail := err.Error()
	if code >= 500 {
		log.Error("api: request failed", "status", code, "kind", engine.ErrorKind(err), "error", err)
		detail = "internal error"
		if errors.Is(err, format.ErrValidationFailed) {
			detail = "generated file failed validation"
		}
		if errors.Is(err, errBusy) {
			detail = err.Error()
		}
	} else {
		log.Info("api: request rejected", "status", code, "error", err)
	}
	writeDetail(w, code, detail)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
