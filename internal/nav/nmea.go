package nav

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/tarm/serial"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
)

// NMEA — навигационный источник по NMEA 0183 (RMC + GGA) с последовательного порта.
// Каждая RMC публикует решение: это и есть секундный тик приёмника.
type NMEA struct {
	Latest

	port   io.ReadCloser
	device string
	done   chan struct{}
	once   sync.Once
	errMu  sync.Mutex
	err    error

	parser nmeaParser
}

// OpenNMEA открывает порт и запускает чтение.
func OpenNMEA(device string, baud int) (*NMEA, error) {
	if baud == 0 {
		baud = 9600
	}
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("nmea open %s: %w", device, err)
	}
	n := NewNMEA(port)
	n.device = device
	return n, nil
}

// NewNMEA запускает чтение NMEA из r (порт, файл записи, pipe в тестах).
func NewNMEA(r io.ReadCloser) *NMEA {
	n := &NMEA{port: r, device: "stream", done: make(chan struct{})}
	go n.loop()
	return n
}

func (n *NMEA) loop() {
	defer close(n.done)
	sc := bufio.NewScanner(n.port)
	for sc.Scan() {
		if f, ok := n.parser.line(sc.Text()); ok {
			n.Publish(f)
		}
	}
	n.errMu.Lock()
	n.err = sc.Err()
	n.errMu.Unlock()
}

// Done закрывается, когда чтение закончилось (EOF или ошибка порта).
func (n *NMEA) Done() <-chan struct{} {
	return n.done
}

// Err — ошибка, на которой остановилось чтение (nil при EOF).
func (n *NMEA) Err() error {
	n.errMu.Lock()
	defer n.errMu.Unlock()
	return n.err
}

func (n *NMEA) String() string {
	return "nmea:" + n.device
}

// Close закрывает порт.
func (n *NMEA) Close() error {
	var err error
	n.once.Do(func() {
		err = n.port.Close()
	})
	return err
}

// nmeaParser держит последнюю позицию из GGA между RMC.
type nmeaParser struct {
	ggaValid bool
	ggaLat   float64
	ggaLng   float64
}

func (p *nmeaParser) line(line string) (Fix, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") || len(line) < 7 {
		return Fix{}, false
	}
	if !checksumOK(line) {
		return Fix{}, false
	}
	if i := strings.Index(line, "*"); i >= 0 {
		line = line[:i]
	}
	parts := strings.Split(line, ",")
	switch {
	case strings.HasSuffix(parts[0], "GGA"):
		p.gga(parts)
		return Fix{}, false
	case strings.HasSuffix(parts[0], "RMC"):
		return p.rmc(parts)
	}
	return Fix{}, false
}

// rmc: [1] hhmmss.ss, [2] A/V, [3..6] координаты, [9] ddmmyy.
func (p *nmeaParser) rmc(parts []string) (Fix, bool) {
	if len(parts) < 10 {
		return Fix{}, false
	}
	var f Fix
	if parts[2] == "A" {
		if ct, ok := parseClockDate(parts[1], parts[9]); ok {
			f.TimeValid = true
			f.Time = ct
		}
		if lat, lng, ok := parseLatLng(parts[3], parts[4], parts[5], parts[6]); ok {
			f.LocationValid = true
			f.Latitude, f.Longitude = lat, lng
		}
	}
	if !f.LocationValid && p.ggaValid {
		f.LocationValid = true
		f.Latitude, f.Longitude = p.ggaLat, p.ggaLng
	}
	return f, true
}

// gga: [2..5] координаты, [6] качество решения (0 — нет решения).
func (p *nmeaParser) gga(parts []string) {
	if len(parts) < 7 {
		return
	}
	q, err := strconv.Atoi(parts[6])
	if err != nil || q == 0 {
		p.ggaValid = false
		return
	}
	lat, lng, ok := parseLatLng(parts[2], parts[3], parts[4], parts[5])
	p.ggaValid = ok
	p.ggaLat, p.ggaLng = lat, lng
}

func parseClockDate(timeStr, dateStr string) (calendar.Time, bool) {
	if len(timeStr) < 6 || len(dateStr) < 6 {
		return calendar.Time{}, false
	}
	hh, err1 := strconv.Atoi(timeStr[0:2])
	mm, err2 := strconv.Atoi(timeStr[2:4])
	ss, err3 := strconv.Atoi(timeStr[4:6])
	day, err4 := strconv.Atoi(dateStr[0:2])
	month, err5 := strconv.Atoi(dateStr[2:4])
	year, err6 := strconv.Atoi(dateStr[4:6])
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return calendar.Time{}, false
		}
	}
	if year < 80 {
		year += 2000
	} else {
		year += 1900
	}
	ct := calendar.Time{
		Year:   uint16(year),
		Month:  uint8(month),
		Day:    uint8(day),
		Hour:   uint8(hh),
		Minute: uint8(mm),
		Second: uint8(ss),
	}
	return ct, ct.Valid()
}

// parseLatLng разбирает ddmm.mmmm,N,dddmm.mmmm,E.
func parseLatLng(lat, ns, lng, ew string) (float64, float64, bool) {
	la, ok1 := parseDegMin(lat, 2)
	lo, ok2 := parseDegMin(lng, 3)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	switch ns {
	case "N":
	case "S":
		la = -la
	default:
		return 0, 0, false
	}
	switch ew {
	case "E":
	case "W":
		lo = -lo
	default:
		return 0, 0, false
	}
	return la, lo, true
}

func parseDegMin(s string, degDigits int) (float64, bool) {
	if len(s) < degDigits+2 {
		return 0, false
	}
	deg, err := strconv.Atoi(s[:degDigits])
	if err != nil {
		return 0, false
	}
	min, err := strconv.ParseFloat(s[degDigits:], 64)
	if err != nil || min >= 60 {
		return 0, false
	}
	return float64(deg) + min/60, true
}

// checksumOK проверяет *hh, если он есть.
func checksumOK(line string) bool {
	i := strings.Index(line, "*")
	if i < 0 {
		return true
	}
	if len(line) < i+3 {
		return false
	}
	want, err := strconv.ParseUint(line[i+1:i+3], 16, 8)
	if err != nil {
		return false
	}
	var sum byte
	for j := 1; j < i; j++ {
		sum ^= line[j]
	}
	return sum == byte(want)
}
