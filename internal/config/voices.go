package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"yqhp/tts-engine/pkg/types"
)

// VoiceType selects the rendering path for a speaker.
type VoiceType string

const (
	// VoiceCustom uses a named built-in voice.
	VoiceCustom VoiceType = "custom"
	// VoiceClone clones from reference audio.
	VoiceClone VoiceType = "clone"
	// VoiceOverlay renders through a trained adapter overlay.
	VoiceOverlay VoiceType = "overlay"
	// VoiceDesign renders from a natural-language voice description.
	VoiceDesign VoiceType = "design"
)

// Voice describes one configured speaker.
type Voice struct {
	Type VoiceType `yaml:"type"`
	// Voice is the built-in voice name (custom type).
	Voice string `yaml:"voice,omitempty"`
	// RefAudio and RefText describe the cloning reference (clone type).
	RefAudio string `yaml:"ref_audio,omitempty"`
	RefText  string `yaml:"ref_text,omitempty"`
	// AdapterPath is the adapter directory (overlay type).
	AdapterPath string `yaml:"adapter_path,omitempty"`
	// Description is the voice identity description (design type).
	Description string `yaml:"description,omitempty"`
	// CharacterStyle is appended to every instruct for this speaker.
	CharacterStyle string `yaml:"character_style,omitempty"`
	// Seed pins sampling; negative means random.
	Seed int64 `yaml:"seed,omitempty"`
}

// Voices maps speaker names to their configuration and resolves speakers
// to work item routing (path, group key, style) and context specs.
type Voices struct {
	BaseDir  string           `yaml:"-"`
	Speakers map[string]Voice `yaml:"speakers"`
}

// LoadVoices reads a voices YAML file. Relative reference and adapter
// paths resolve against the file's directory.
func LoadVoices(path string) (*Voices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voices file: %w", err)
	}

	v := &Voices{Speakers: make(map[string]Voice)}
	if err := yaml.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("parse voices file: %w", err)
	}
	v.BaseDir = filepath.Dir(path)

	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks that every speaker entry carries the fields its type
// requires.
func (v *Voices) Validate() error {
	var errs ValidationErrors
	for name, voice := range v.Speakers {
		field := fmt.Sprintf("speakers.%s", name)
		switch voice.Type {
		case VoiceCustom, "":
		case VoiceClone:
			if voice.RefAudio == "" || voice.RefText == "" {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: "clone voice requires ref_audio and ref_text",
				})
			}
		case VoiceOverlay:
			if voice.AdapterPath == "" {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: "overlay voice requires adapter_path",
				})
			}
		case VoiceDesign:
			if voice.Description == "" {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: "design voice requires description",
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown voice type %q", voice.Type),
			})
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Get returns the voice entry for a speaker.
func (v *Voices) Get(speaker string) (Voice, bool) {
	voice, ok := v.Speakers[speaker]
	return voice, ok
}

// Path returns the rendering path for a voice entry.
func (voice Voice) Path() types.RenderPath {
	switch voice.Type {
	case VoiceClone:
		return types.PathClone
	case VoiceOverlay:
		return types.PathOverlay
	case VoiceDesign:
		return types.PathDesign
	default:
		return types.PathCustom
	}
}

// GroupKey returns the shared-context grouping identity for a speaker.
// Clone voices share a prompt per speaker, overlay voices per adapter,
// custom voices per built-in voice name.
func (v *Voices) GroupKey(speaker string, voice Voice) string {
	switch voice.Type {
	case VoiceClone:
		return speaker
	case VoiceOverlay:
		return v.resolvePath(voice.AdapterPath)
	case VoiceDesign:
		return speaker
	default:
		return voice.Voice
	}
}

// ContextSpec builds the shared-context spec for a group of the given
// speaker. Custom voices need no context and return ok=false.
func (v *Voices) ContextSpec(speaker string) (types.ContextSpec, bool, error) {
	voice, ok := v.Speakers[speaker]
	if !ok {
		return types.ContextSpec{}, false, fmt.Errorf("no voice configuration for %q", speaker)
	}

	switch voice.Type {
	case VoiceClone:
		ref := v.resolvePath(voice.RefAudio)
		if _, err := os.Stat(ref); err != nil {
			return types.ContextSpec{}, false, fmt.Errorf("reference audio for %q: %w", speaker, err)
		}
		return types.ContextSpec{RefAudioPath: ref, RefText: voice.RefText}, true, nil
	case VoiceOverlay:
		adapter := v.resolvePath(voice.AdapterPath)
		if fi, err := os.Stat(adapter); err != nil || !fi.IsDir() {
			return types.ContextSpec{}, false, fmt.Errorf("adapter path for %q not found: %s", speaker, adapter)
		}
		return types.ContextSpec{
			AdapterPath:  adapter,
			RefAudioPath: filepath.Join(adapter, "ref_sample.wav"),
		}, true, nil
	case VoiceDesign:
		return types.ContextSpec{Description: voice.Description}, true, nil
	default:
		return types.ContextSpec{}, false, nil
	}
}

// Resolve implements the scheduler's context resolution. The group key
// is a speaker name for clone and design groups, an adapter directory
// for overlay groups and a built-in voice name (or empty) for custom
// groups.
func (v *Voices) Resolve(path types.RenderPath, groupKey string) (types.ContextSpec, bool, error) {
	switch path {
	case types.PathClone, types.PathDesign:
		return v.ContextSpec(groupKey)
	case types.PathOverlay:
		if fi, err := os.Stat(groupKey); err != nil || !fi.IsDir() {
			return types.ContextSpec{}, false, fmt.Errorf("adapter path not found: %s", groupKey)
		}
		return types.ContextSpec{
			AdapterPath:  groupKey,
			RefAudioPath: filepath.Join(groupKey, "ref_sample.wav"),
		}, true, nil
	default:
		return types.ContextSpec{}, false, nil
	}
}

// BuildItem routes one text segment for a configured speaker into a
// schedulable work item. The instruct is combined with the speaker's
// character style when both are present.
func (v *Voices) BuildItem(index int, speaker, text, instruct string) (types.WorkItem, error) {
	voice, ok := v.Speakers[speaker]
	if !ok {
		return types.WorkItem{}, fmt.Errorf("no voice configuration for speaker %q", speaker)
	}

	style := types.StyleParams{
		Voice:    voice.Voice,
		Instruct: instruct,
		Seed:     voice.Seed,
	}
	if voice.CharacterStyle != "" {
		if style.Instruct == "" {
			style.Instruct = voice.CharacterStyle
		} else {
			style.Instruct = voice.CharacterStyle + ", " + style.Instruct
		}
	}

	return types.WorkItem{
		Index:    index,
		Text:     text,
		Path:     voice.Path(),
		GroupKey: v.GroupKey(speaker, voice),
		Style:    style,
	}, nil
}

func (v *Voices) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(v.BaseDir, p)
}
