// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"encoding/binary"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// debounce coalesces bursts of events (an editor writing a file in
// several steps) into one reread.
const debounce = 50 * time.Millisecond

// watcher reports changed collection files in one directory.
//
// It watches the directory rather than the files: an atomic rename
// replaces the inode, so a watch on the old file would miss it.
type watcher struct {
	fd       int
	onChange func(collectionName string)
	stopping chan struct{}
	done     chan struct{}
}

func startWatcher(directory string, onChange func(collectionName string)) (*watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if _, err := unix.InotifyAddWatch(fd, directory, unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO|unix.IN_DELETE); err != nil {
		unix.Close(fd)
		return nil, err
	}

	w := &watcher{
		fd:       fd,
		onChange: onChange,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// stop ends the loop and waits for it to close the descriptor.
// Idempotent.
func (w *watcher) stop() {
	select {
	case <-w.stopping:
	default:
		close(w.stopping)
	}
	<-w.done
}

// loop polls with a 100ms timeout so stop is noticed promptly.
func (w *watcher) loop() {
	defer close(w.done)
	defer unix.Close(w.fd)

	buffer := make([]byte, 64*(unix.SizeofInotifyEvent+256))
	for {
		select {
		case <-w.stopping:
			return
		default:
		}

		descriptors := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(descriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if count == 0 {
			continue
		}

		changed := make(map[string]struct{})
		if !w.collect(buffer, changed) {
			return
		}
		if len(changed) == 0 {
			continue
		}

		time.Sleep(debounce)
		if !w.collect(buffer, changed) {
			return
		}
		for name := range changed {
			w.onChange(name)
		}
	}
}

// collect drains pending events into changed. Returns false on a
// fatal read error.
func (w *watcher) collect(buffer []byte, changed map[string]struct{}) bool {
	for {
		bytesRead, err := unix.Read(w.fd, buffer)
		if err == unix.EAGAIN {
			return true
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false
		}
		for _, name := range eventNames(buffer[:bytesRead]) {
			if collectionName, ok := collectionFile(name); ok {
				changed[collectionName] = struct{}{}
			}
		}
	}
}

// collectionFile maps a file name to its collection, ignoring hidden
// files (including the store's own temp files) and other extensions.
func collectionFile(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Extension) {
		return "", false
	}
	collectionName := strings.TrimSuffix(name, Extension)
	return collectionName, collectionName != ""
}

// eventNames extracts the names carried by a buffer of inotify events.
// Layout from inotify(7):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, null-padded
//	};
func eventNames(buffer []byte) []string {
	var names []string
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		end := offset + unix.SizeofInotifyEvent + nameLength
		if end > len(buffer) {
			break
		}
		if nameLength > 0 {
			raw := buffer[offset+unix.SizeofInotifyEvent : end]
			if null := strings.IndexByte(string(raw), 0); null >= 0 {
				raw = raw[:null]
			}
			names = append(names, string(raw))
		}
		offset = end
	}
	return names
}
