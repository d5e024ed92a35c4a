package notify

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultTimeout = 60 * time.Second

var commandContext = exec.CommandContext

// Notifier is told about every stored subtitle
type Notifier interface {
	Notify(video models.Video, lang models.Language, storage models.StorageKind)
}

// New returns an executable notifier, or a no-op when command is empty.
// command is split on whitespace; {video}, {path}, {language}, {storage}
// and {item} are substituted in every argument.
func New(command string, timeout time.Duration, logger *logrus.Logger) Notifier {
	args := strings.Fields(command)
	if len(args) == 0 {
		return noop{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Exec{args: args, timeout: timeout, logger: logger}
}

type noop struct{}

func (noop) Notify(models.Video, models.Language, models.StorageKind) {}

// Exec runs an executable in the background for each notification
type Exec struct {
	args    []string
	timeout time.Duration
	logger  *logrus.Logger
	wg      sync.WaitGroup
}

// Notify starts the executable and returns immediately. Failures are logged.
func (e *Exec) Notify(video models.Video, lang models.Language, storage models.StorageKind) {
	replacer := strings.NewReplacer(
		"{video}", video.Name(),
		"{path}", video.Path,
		"{language}", lang.String(),
		"{storage}", string(storage),
		"{item}", video.ID,
	)
	args := make([]string, len(e.args))
	for i, a := range e.args {
		args[i] = replacer.Replace(a)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		output, err := commandContext(ctx, args[0], args[1:]...).CombinedOutput() //nolint:gosec
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"command": args[0],
				"video":   video.Name(),
				"output":  strings.TrimSpace(string(output)),
				"error":   err,
			}).Warn("Notification command failed")
			return
		}
		e.logger.WithFields(logrus.Fields{
			"command":  args[0],
			"video":    video.Name(),
			"language": lang.String(),
		}).Debug("Notification command completed")
	}()
}

// Wait blocks until every started notification has finished
func (e *Exec) Wait() {
	e.wg.Wait()
}
