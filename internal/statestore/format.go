package statestore

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// encode renders the nonzero keys of s as "key = integer" lines, in a
// stable order, per §4.3's "zero-valued keys are omitted on write" rule.
func encode(s *PersistentDeviceState) []byte {
	kv := map[string]int64{}
	put := func(key string, v int64) {
		if v != 0 {
			kv[key] = v
		}
	}

	put("temperature-min", int64(s.TemperatureMin))
	put("temperature-max", int64(s.TemperatureMax))
	put("self-test-errors", int64(s.SelfTestErrors))
	put("self-test-last-err-hour", int64(s.SelfTestLastErrorHour))
	put("scheduled-test-next-check", s.ScheduledTestNextCheck)
	put("selective-test-last-start", int64(s.SelectiveTestLastStart))
	put("selective-test-last-end", int64(s.SelectiveTestLastEnd))
	put("ata-error-count", int64(s.AtaErrorCount))
	put("nvme-err-log-entries", int64(s.NvmeErrLogEntries))
	put("nvme-available-spare", int64(s.NvmeAvailableSpare))
	put("nvme-percentage-used", int64(s.NvmePercentageUsed))
	put("nvme-media-errors", int64(s.NvmeMediaErrors))

	for i, m := range s.Mail {
		put(fmt.Sprintf("mail.%d.count", i), int64(m.Count))
		put(fmt.Sprintf("mail.%d.first-sent-time", i), m.FirstSentEpoch)
		put(fmt.Sprintf("mail.%d.last-sent-time", i), m.LastSentEpoch)
	}
	for i, a := range s.AtaAttributes {
		put(fmt.Sprintf("ata-smart-attribute.%d.id", i), int64(a.ID))
		put(fmt.Sprintf("ata-smart-attribute.%d.val", i), int64(a.Value))
		put(fmt.Sprintf("ata-smart-attribute.%d.worst", i), int64(a.Worst))
		put(fmt.Sprintf("ata-smart-attribute.%d.raw", i), int64(a.Raw))
		put(fmt.Sprintf("ata-smart-attribute.%d.resvd", i), int64(a.Resvd))
		put(fmt.Sprintf("ata-smart-attribute.%d.thresh", i), int64(a.Threshold))
	}

	keys := maps.Keys(kv)
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString("# smartmond device state, one key = integer per line\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %d\n", k, kv[k])
	}
	return []byte(b.String())
}

// decode parses "key = integer" lines, tolerating unknown keys and
// malformed lines as long as at least one line parsed cleanly -- a
// corrupted or hand-edited file must never crash the daemon.
func decode(r io.Reader) (*PersistentDeviceState, error) {
	s := NewPersistentDeviceState()
	attrs := map[int]*AtaAttributeSnapshot{}

	clean, malformed := 0, 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			malformed++
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			malformed++
			continue
		}
		clean++
		applyKey(s, attrs, key, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if malformed > 0 && clean == 0 {
		return nil, fmt.Errorf("no line of the state file parsed (%d malformed)", malformed)
	}

	for i := 0; i < len(attrs); i++ {
		if a, ok := attrs[i]; ok {
			s.AtaAttributes = append(s.AtaAttributes, *a)
		}
	}
	return s, nil
}

func applyKey(s *PersistentDeviceState, attrs map[int]*AtaAttributeSnapshot, key string, n int64) {
	switch key {
	case "temperature-min":
		s.TemperatureMin = uint8(n)
	case "temperature-max":
		s.TemperatureMax = uint8(n)
	case "self-test-errors":
		s.SelfTestErrors = uint8(n)
	case "self-test-last-err-hour":
		s.SelfTestLastErrorHour = uint64(n)
	case "scheduled-test-next-check":
		s.ScheduledTestNextCheck = n
	case "selective-test-last-start":
		s.SelectiveTestLastStart = uint64(n)
	case "selective-test-last-end":
		s.SelectiveTestLastEnd = uint64(n)
	case "ata-error-count":
		s.AtaErrorCount = int32(n)
	case "nvme-err-log-entries":
		s.NvmeErrLogEntries = uint64(n)
	case "nvme-available-spare":
		s.NvmeAvailableSpare = uint8(n)
	case "nvme-percentage-used":
		s.NvmePercentageUsed = uint8(n)
	case "nvme-media-errors":
		s.NvmeMediaErrors = uint64(n)
	default:
		applyIndexedKey(s, attrs, key, n)
	}
}

// applyIndexedKey handles the "mail.<i>.*" and "ata-smart-attribute.<i>.*"
// families.
func applyIndexedKey(s *PersistentDeviceState, attrs map[int]*AtaAttributeSnapshot, key string, n int64) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 {
		return
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return
	}

	switch parts[0] {
	case "mail":
		m := s.Mail[idx]
		switch parts[2] {
		case "count":
			m.Count = int(n)
		case "first-sent-time":
			m.FirstSentEpoch = n
		case "last-sent-time":
			m.LastSentEpoch = n
		default:
			return
		}
		s.Mail[idx] = m
	case "ata-smart-attribute":
		a, ok := attrs[idx]
		if !ok {
			a = &AtaAttributeSnapshot{}
			attrs[idx] = a
		}
		switch parts[2] {
		case "id":
			a.ID = uint8(n)
		case "val":
			a.Value = uint8(n)
		case "worst":
			a.Worst = uint8(n)
		case "raw":
			a.Raw = uint64(n)
		case "resvd":
			a.Resvd = uint8(n)
		case "thresh":
			a.Threshold = uint8(n)
		}
	}
}
