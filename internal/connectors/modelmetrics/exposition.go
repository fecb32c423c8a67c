package modelmetrics

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// sample is one line of a Prometheus text exposition. Labels are dropped.
type sample struct {
	name  string
	value float64
}

// readExposition returns every parseable sample of r in order. Comments,
// blank lines and malformed lines are skipped.
func readExposition(r io.Reader) ([]sample, error) {
	var out []sample
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if smp, ok := parseSample(sc.Text()); ok {
			out = append(out, smp)
		}
	}
	return out, sc.Err()
}

// parseSample reads `name{labels} value [timestamp]` or `name value [timestamp]`.
func parseSample(line string) (sample, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return sample{}, false
	}

	var name, tail string
	if open := strings.IndexByte(line, '{'); open >= 0 {
		closing := strings.LastIndexByte(line, '}')
		if closing < open {
			return sample{}, false
		}
		name, tail = line[:open], line[closing+1:]
	} else {
		var found bool
		name, tail, found = strings.Cut(line, " ")
		if !found {
			return sample{}, false
		}
	}

	name = strings.TrimSpace(name)
	fields := strings.Fields(tail)
	if name == "" || len(fields) == 0 {
		return sample{}, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return sample{}, false
	}
	return sample{name: name, value: v}, true
}

// modelGauges sums the exporter gauges of samples, merging series that only
// differ by labels.
func modelGauges(samples []sample) map[string]float64 {
	out := make(map[string]float64)
	for _, smp := range samples {
		if IsModelMetric(smp.name) {
			out[smp.name] += smp.value
		}
	}
	return out
}

// firstValues keeps the first value seen per metric name.
func firstValues(samples []sample) map[string]float64 {
	out := make(map[string]float64, len(samples))
	for _, smp := range samples {
		if _, dup := out[smp.name]; !dup {
			out[smp.name] = smp.value
		}
	}
	return out
}
