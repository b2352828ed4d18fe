package redact

import (
	"encoding/base64"
	"sort"
	"strings"
)

// Mask — фиксированный токен, которым заменяются найденные секреты.
const Mask = "***"

// Scrubber вычищает известные секреты из текста логов.
//
// Для каждого секрета маскируются: сырое значение, его base64-кодировка
// и base64-кодировки комбинаций "user:secret" basic-auth (все пары
// известных значений). Маскируются только точные вхождения образцов —
// случайные пересечения с коротким секретом не затрагиваются.
//
// Scrubber собирается один раз на run и пополняется по мере разрешения
// новых credentials: утечка секрета возможна и в поздних steps.
type Scrubber struct {
	// samples — все образцы для замены, от длинных к коротким, чтобы
	// замена короткого образца не разрушала вхождение длинного.
	samples []string
	seen    map[string]bool
}

// NewScrubber создаёт Scrubber для набора секретов.
func NewScrubber(secrets []string) *Scrubber {
	s := &Scrubber{seen: make(map[string]bool)}
	s.Add(secrets)
	return s
}

// Add добавляет секреты к уже известным.
//
// Комбинации basic-auth строятся между всеми известными значениями,
// включая ранее добавленные: credential, разрешённый на позднем step,
// может сочетаться с ранним.
func (s *Scrubber) Add(secrets []string) {
	fresh := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		fresh = append(fresh, secret)
	}
	if len(fresh) == 0 {
		return
	}

	all := s.knownSecrets()

	for _, secret := range fresh {
		s.addSample(secret)
		s.addSample(base64.StdEncoding.EncodeToString([]byte(secret)))
	}

	// Пары для basic-auth: новое значение с каждым известным, в обе
	// стороны, плюс новые между собой.
	combined := append(append([]string{}, all...), fresh...)
	for _, secret := range fresh {
		for _, other := range combined {
			s.addSample(base64.StdEncoding.EncodeToString([]byte(other + ":" + secret)))
			s.addSample(base64.StdEncoding.EncodeToString([]byte(secret + ":" + other)))
		}
	}

	for _, secret := range fresh {
		s.seen[secretKey(secret)] = true
	}

	sort.Slice(s.samples, func(i, j int) bool {
		return len(s.samples[i]) > len(s.samples[j])
	})
}

// Scrub возвращает текст с замаскированными вхождениями всех образцов.
func (s *Scrubber) Scrub(text string) string {
	for _, sample := range s.samples {
		text = strings.ReplaceAll(text, sample, Mask)
	}
	return text
}

// Secrets возвращает количество известных секретов (для логирования).
func (s *Scrubber) Secrets() int {
	return len(s.knownSecrets())
}

func (s *Scrubber) addSample(sample string) {
	if sample == "" || s.seen["sample:"+sample] {
		return
	}
	s.seen["sample:"+sample] = true
	s.samples = append(s.samples, sample)
}

func (s *Scrubber) knownSecrets() []string {
	out := make([]string, 0, len(s.seen))
	for k := range s.seen {
		if raw, ok := strings.CutPrefix(k, "secret:"); ok {
			out = append(out, raw)
		}
	}
	return out
}

func secretKey(secret string) string {
	return "secret:" + secret
}

// Scrub — одноразовая очистка текста от набора секретов.
func Scrub(text string, secrets []string) string {
	return NewScrubber(secrets).Scrub(text)
}
