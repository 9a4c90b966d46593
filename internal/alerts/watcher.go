package alerts

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay absorbs the burst of events editors emit on save.
const debounceDelay = 250 * time.Millisecond

// RuleWatcher hot-reloads a rules file. A new version is validated in
// full before it replaces the running set; a broken file leaves the
// current rules in place.
type RuleWatcher struct {
	path    string
	rules   *RuleSet
	watcher *fsnotify.Watcher
}

// NewRuleWatcher creates a watcher for the rules file feeding the set.
func NewRuleWatcher(path string, rules *RuleSet) (*RuleWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on
	// save, which retargets a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch rules directory: %w", err)
	}

	return &RuleWatcher{
		path:    path,
		rules:   rules,
		watcher: watcher,
	}, nil
}

// Run watches until ctx is cancelled.
func (w *RuleWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("warning: rules watcher error: %v", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

// reload validates the file and swaps the rule set on success.
func (w *RuleWatcher) reload() {
	rules, err := LoadRulesFromFile(w.path)
	if err != nil {
		log.Printf("warning: rules reload rejected, keeping current rules: %v", err)
		return
	}
	w.rules.Replace(rules)
	log.Printf("rules reloaded: %d rules active", len(rules))
}
