package pipeline

import (
	"github.com/Skryldev/variant-cache/core"
)

// Variant describes the variant a plan produces.
type Variant struct {
	// Spec is the effective (clamped) spec.
	Spec core.TransformSpec
	// Rotation is the clockwise correction from the EXIF orientation, 0 for none.
	Rotation int
	// Format is the output codec; FormatUnknown keeps the source codec.
	Format  core.Format
	Quality int
	Key     core.StorageKey
}

// Planner holds the backend a plan is built against.
type Planner struct {
	Registry core.Registry
	Factory  core.StepFactory
	Storage  core.StorageAdapter
	// Stripper is used after a rotation when the encoder keeps metadata.
	Stripper core.MetadataStripper
	Logger   core.Logger
}

// Plan returns the ordered steps that turn the raw source into the stored
// variant:
//
//	decode → [rotate] → [cover | fit] → [format] → encode → write → [strip]
func (p *Planner) Plan(v Variant) []core.Step {
	factory := p.Factory
	if factory == nil {
		factory = Std{}
	}

	steps := []core.Step{&DecodeStep{Registry: p.Registry}}
	if v.Rotation != 0 {
		steps = append(steps, factory.Rotate(v.Rotation))
	}

	w, h := core.IntOrZero(v.Spec.Width), core.IntOrZero(v.Spec.Height)
	switch {
	case v.Spec.Crop && w > 0 && h > 0:
		steps = append(steps, factory.Cover(w, h))
	case w > 0 || h > 0:
		steps = append(steps, factory.Fit(w, h))
	}

	if v.Format != core.FormatUnknown && v.Format != "" {
		steps = append(steps, &FormatStep{Format: v.Format})
	}
	steps = append(steps,
		&EncodeStep{Registry: p.Registry, Options: core.EncodeOptions{Quality: v.Quality}},
		&WriteStep{Storage: p.Storage, Key: v.Key},
	)

	if v.Rotation != 0 && p.Stripper != nil && !p.encoderStrips(v.Format) {
		steps = append(steps, &StripMetadataStep{
			Stripper: p.Stripper,
			Path:     p.Storage.PathOf(v.Key),
			Logger:   p.Logger,
		})
	}
	return steps
}

func (p *Planner) encoderStrips(f core.Format) bool {
	enc, ok := p.Registry.EncoderFor(f)
	if !ok {
		// Unknown target format: the encode step fails before strip matters.
		return true
	}
	return enc.StripsMetadata()
}
