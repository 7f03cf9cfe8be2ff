package capture

// Image is an opaque captured image blob with its declared MIME type.
// Nothing in the pipeline inspects the pixel data; decoding is the
// collaborating services' concern.
type Image struct {
	Data []byte
	MIME string
}

// Present reports whether the image actually holds data.
func (i Image) Present() bool {
	return len(i.Data) > 0
}

// CaptureSet holds the two card images and the live selfie owned by a
// verification session. It is a pure data holder.
type CaptureSet struct {
	Front  Image
	Back   Image
	Selfie Image
}

// CanMatchFace reports whether a face-match attempt is possible.
func (c *CaptureSet) CanMatchFace() bool {
	return c.Front.Present() && c.Selfie.Present()
}

// CanExtract reports whether OCR extraction is possible.
func (c *CaptureSet) CanExtract() bool {
	return c.Front.Present() && c.Back.Present()
}

// ClearSelfie drops the live capture while keeping the card images, forcing
// a fresh selfie before the next face-match attempt.
func (c *CaptureSet) ClearSelfie() {
	c.Selfie = Image{}
}

// Clear drops every buffered image. Called on every path that ends the
// owning session.
func (c *CaptureSet) Clear() {
	*c = CaptureSet{}
}
