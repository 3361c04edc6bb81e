package chatclient

import (
	"fmt"
	"io"
	"time"

	"github.com/markdave123-py/Parley/internal/models"
)

// TitleRenderer prints conversation titles, typing each real title out once.
type TitleRenderer struct {
	out   io.Writer
	store *TitleStore
	delay time.Duration
	sleep func(time.Duration)
}

func NewTitleRenderer(out io.Writer, store *TitleStore, delay time.Duration) *TitleRenderer {
	return &TitleRenderer{out: out, store: store, delay: delay, sleep: time.Sleep}
}

// Render writes conv's title followed by a newline. A title that is still the
// placeholder or still being generated is printed plainly and not recorded.
func (r *TitleRenderer) Render(conv models.Conversation) error {
	if conv.IsTitleGenerating || conv.HasSentinelTitle() || r.store.Typed(conv.ID) {
		_, err := fmt.Fprintln(r.out, conv.Title)
		return err
	}

	for _, ch := range conv.Title {
		if _, err := fmt.Fprint(r.out, string(ch)); err != nil {
			return err
		}
		r.sleep(r.delay)
	}
	if _, err := fmt.Fprintln(r.out); err != nil {
		return err
	}
	return r.store.MarkTyped(conv.ID)
}
