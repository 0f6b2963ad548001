package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLines reads a text file and returns its trimmed, non-blank lines.
// Lines starting with '#' are treated as comments.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// ParseChannelLine parses "channel_id" or "channel_id|name". Without a name
// the channel is called "channel_<ordinal>".
func ParseChannelLine(line string, ordinal int) Channel {
	id, name, _ := strings.Cut(line, "|")
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("channel_%d", ordinal)
	}
	return Channel{Id: id, Name: name}
}
