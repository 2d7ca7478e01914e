/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package languages is the single source of truth for the languages the
// translator offers: display names, service codes, detection codes and
// transcription hints.
package languages

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Language is one of the supported languages. The zero value is invalid.
type Language uint8

const (
	invalid Language = iota
	English
	Spanish
	French
	German
	Italian
	Portuguese
	ChineseSimplified
	ChineseTraditional
	Japanese
	Korean
	Hindi
	Arabic
	Russian
	Bengali
	Indonesian
	Turkish
	Vietnamese
	Dutch
	Greek
	Hebrew
	Swedish
	Norwegian
	Danish
	Polish
	Czech
	Hungarian
	Finnish
	Thai
	Filipino
	Malay
	Urdu
	Tamil
	Telugu
	Marathi
	Punjabi
	Gujarati
	Ukrainian
	Romanian
	Bulgarian
	Serbian
	Croatian
	Slovak
	Slovenian
	Lithuanian
	Latvian
	Estonian
	Icelandic
	Afrikaans
	Albanian
	Amharic
	Armenian
	Azerbaijani
	Basque
	Belarusian
	Bosnian
	Catalan
	Cebuano
	Corsican
	Esperanto
	Frisian
	Galician
	Georgian
	HaitianCreole
	Hausa
	Hawaiian
	Hmong
	Igbo
	Irish
	Javanese
	Kannada
	Kazakh
	Khmer
	Kinyarwanda
	Kurdish
	Kyrgyz
	Lao
	Latin
	Luxembourgish
	Macedonian
	Malagasy
	Malayalam
	Maltese
	Maori
	Mongolian
	Myanmar
	Nepali
	Nyanja
	Odia
	Pashto
	Persian
	Samoan
	ScotsGaelic
	Sesotho
	Shona
	Sindhi
	Sinhala
	Somali
	Sundanese
	Swahili
	Tagalog
	Tajik
	Tatar
	Turkmen
	Uyghur
	Uzbek
	Welsh
	Xhosa
	Yiddish
	Yoruba
	Zulu

	numLanguages
)

type entry struct {
	name string
	// code is what the translation and speech services expect
	code string
	// detect overrides the detection code when it differs from code
	detect string
	// stt overrides the transcription language hint, which otherwise is the
	// primary subtag of code
	stt string
}

var registry = [numLanguages]entry{
	English:            {name: "English", code: "en"},
	Spanish:            {name: "Spanish", code: "es"},
	French:             {name: "French", code: "fr"},
	German:             {name: "German", code: "de"},
	Italian:            {name: "Italian", code: "it"},
	Portuguese:         {name: "Portuguese", code: "pt"},
	ChineseSimplified:  {name: "Chinese (Simplified)", code: "zh-CN", detect: "zh"},
	ChineseTraditional: {name: "Chinese (Traditional)", code: "zh-TW", detect: "zh"},
	Japanese:           {name: "Japanese", code: "ja"},
	Korean:             {name: "Korean", code: "ko"},
	Hindi:              {name: "Hindi", code: "hi"},
	Arabic:             {name: "Arabic", code: "ar"},
	Russian:            {name: "Russian", code: "ru"},
	Bengali:            {name: "Bengali", code: "bn"},
	Indonesian:         {name: "Indonesian", code: "id"},
	Turkish:            {name: "Turkish", code: "tr"},
	Vietnamese:         {name: "Vietnamese", code: "vi"},
	Dutch:              {name: "Dutch", code: "nl"},
	Greek:              {name: "Greek", code: "el"},
	Hebrew:             {name: "Hebrew", code: "he"},
	Swedish:            {name: "Swedish", code: "sv"},
	Norwegian:          {name: "Norwegian", code: "no", detect: "nb"},
	Danish:             {name: "Danish", code: "da"},
	Polish:             {name: "Polish", code: "pl"},
	Czech:              {name: "Czech", code: "cs"},
	Hungarian:          {name: "Hungarian", code: "hu"},
	Finnish:            {name: "Finnish", code: "fi"},
	Thai:               {name: "Thai", code: "th"},
	Filipino:           {name: "Filipino", code: "fil", detect: "tl", stt: "tl"},
	Malay:              {name: "Malay", code: "ms"},
	Urdu:               {name: "Urdu", code: "ur"},
	Tamil:              {name: "Tamil", code: "ta"},
	Telugu:             {name: "Telugu", code: "te"},
	Marathi:            {name: "Marathi", code: "mr"},
	Punjabi:            {name: "Punjabi", code: "pa"},
	Gujarati:           {name: "Gujarati", code: "gu"},
	Ukrainian:          {name: "Ukrainian", code: "uk"},
	Romanian:           {name: "Romanian", code: "ro"},
	Bulgarian:          {name: "Bulgarian", code: "bg"},
	Serbian:            {name: "Serbian", code: "sr"},
	Croatian:           {name: "Croatian", code: "hr"},
	Slovak:             {name: "Slovak", code: "sk"},
	Slovenian:          {name: "Slovenian", code: "sl"},
	Lithuanian:         {name: "Lithuanian", code: "lt"},
	Latvian:            {name: "Latvian", code: "lv"},
	Estonian:           {name: "Estonian", code: "et"},
	Icelandic:          {name: "Icelandic", code: "is"},
	Afrikaans:          {name: "Afrikaans", code: "af"},
	Albanian:           {name: "Albanian", code: "sq"},
	Amharic:            {name: "Amharic", code: "am"},
	Armenian:           {name: "Armenian", code: "hy"},
	Azerbaijani:        {name: "Azerbaijani", code: "az"},
	Basque:             {name: "Basque", code: "eu"},
	Belarusian:         {name: "Belarusian", code: "be"},
	Bosnian:            {name: "Bosnian", code: "bs"},
	Catalan:            {name: "Catalan", code: "ca"},
	Cebuano:            {name: "Cebuano", code: "ceb"},
	Corsican:           {name: "Corsican", code: "co"},
	Esperanto:          {name: "Esperanto", code: "eo"},
	Frisian:            {name: "Frisian", code: "fy"},
	Galician:           {name: "Galician", code: "gl"},
	Georgian:           {name: "Georgian", code: "ka"},
	HaitianCreole:      {name: "Haitian Creole", code: "ht"},
	Hausa:              {name: "Hausa", code: "ha"},
	Hawaiian:           {name: "Hawaiian", code: "haw"},
	Hmong:              {name: "Hmong", code: "hmn"},
	Igbo:               {name: "Igbo", code: "ig"},
	Irish:              {name: "Irish", code: "ga"},
	Javanese:           {name: "Javanese", code: "jw", detect: "jv"},
	Kannada:            {name: "Kannada", code: "kn"},
	Kazakh:             {name: "Kazakh", code: "kk"},
	Khmer:              {name: "Khmer", code: "km"},
	Kinyarwanda:        {name: "Kinyarwanda", code: "rw"},
	Kurdish:            {name: "Kurdish", code: "ku"},
	Kyrgyz:             {name: "Kyrgyz", code: "ky"},
	Lao:                {name: "Lao", code: "lo"},
	Latin:              {name: "Latin", code: "la"},
	Luxembourgish:      {name: "Luxembourgish", code: "lb"},
	Macedonian:         {name: "Macedonian", code: "mk"},
	Malagasy:           {name: "Malagasy", code: "mg"},
	Malayalam:          {name: "Malayalam", code: "ml"},
	Maltese:            {name: "Maltese", code: "mt"},
	Maori:              {name: "Maori", code: "mi"},
	Mongolian:          {name: "Mongolian", code: "mn"},
	Myanmar:            {name: "Myanmar (Burmese)", code: "my"},
	Nepali:             {name: "Nepali", code: "ne"},
	Nyanja:             {name: "Nyanja (Chichewa)", code: "ny"},
	Odia:               {name: "Odia (Oriya)", code: "or"},
	Pashto:             {name: "Pashto", code: "ps"},
	Persian:            {name: "Persian", code: "fa"},
	Samoan:             {name: "Samoan", code: "sm"},
	ScotsGaelic:        {name: "Scots Gaelic", code: "gd"},
	Sesotho:            {name: "Sesotho", code: "st"},
	Shona:              {name: "Shona", code: "sn"},
	Sindhi:             {name: "Sindhi", code: "sd"},
	Sinhala:            {name: "Sinhala (Sinhalese)", code: "si"},
	Somali:             {name: "Somali", code: "so"},
	Sundanese:          {name: "Sundanese", code: "su"},
	Swahili:            {name: "Swahili", code: "sw"},
	Tagalog:            {name: "Tagalog (Filipino)", code: "tl"},
	Tajik:              {name: "Tajik", code: "tg"},
	Tatar:              {name: "Tatar", code: "tt"},
	Turkmen:            {name: "Turkmen", code: "tk"},
	Uyghur:             {name: "Uyghur", code: "ug"},
	Uzbek:              {name: "Uzbek", code: "uz"},
	Welsh:              {name: "Welsh", code: "cy"},
	Xhosa:              {name: "Xhosa", code: "xh"},
	Yiddish:            {name: "Yiddish", code: "yi"},
	Yoruba:             {name: "Yoruba", code: "yo"},
	Zulu:               {name: "Zulu", code: "zu"},
}

var (
	byName   = make(map[string]Language, numLanguages)
	byCode   = make(map[string]Language, numLanguages)
	byDetect = make(map[string]Language, numLanguages)
)

func init() {
	for l := Language(1); l < numLanguages; l++ {
		e := registry[l]
		byName[strings.ToLower(e.name)] = l
		byCode[strings.ToLower(e.code)] = l
		// first registration wins: "zh" maps to Simplified, "tl" to Filipino
		if _, exists := byDetect[l.DetectionCode()]; !exists {
			byDetect[l.DetectionCode()] = l
		}
	}
}

// Valid reports whether l is a registered language
func (l Language) Valid() bool {
	return l > invalid && l < numLanguages
}

// Name returns the human-readable display name
func (l Language) Name() string {
	if !l.Valid() {
		return ""
	}
	return registry[l].name
}

// Code returns the code used by the translation and speech services
func (l Language) Code() string {
	if !l.Valid() {
		return ""
	}
	return registry[l].code
}

// DetectionCode returns the lower-case code language detection reports for l
func (l Language) DetectionCode() string {
	if !l.Valid() {
		return ""
	}
	if d := registry[l].detect; d != "" {
		return d
	}
	return strings.ToLower(registry[l].code)
}

// TranscriptionCode returns the language hint the speech-to-text model
// expects for l. Whisper keeps some legacy codes, e.g. "no" and "jw".
func (l Language) TranscriptionCode() string {
	if !l.Valid() {
		return ""
	}
	if s := registry[l].stt; s != "" {
		return s
	}
	base, _, _ := strings.Cut(registry[l].code, "-")
	return strings.ToLower(base)
}

func (l Language) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Language(%d)", uint8(l))
	}
	return registry[l].name
}

// MarshalJSON encodes a language as its display name and codes
func (l Language) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Name          string `json:"name"`
		Code          string `json:"code"`
		DetectionCode string `json:"detection_code"`
	}{l.Name(), l.Code(), l.DetectionCode()})
}

// All returns every language in display order
func All() []Language {
	all := make([]Language, 0, numLanguages-1)
	for l := Language(1); l < numLanguages; l++ {
		all = append(all, l)
	}
	return all
}

// FromName looks a language up by display name, case-insensitively
func FromName(name string) (Language, bool) {
	l, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// FromCode looks a language up by service code, case-insensitively
func FromCode(code string) (Language, bool) {
	l, ok := byCode[strings.ToLower(strings.TrimSpace(code))]
	return l, ok
}

// FromDetectionCode maps a code reported by language detection back to a
// language. Region-qualified codes fall back to their primary subtag.
func FromDetectionCode(code string) (Language, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if l, ok := byDetect[code]; ok {
		return l, true
	}
	if l, ok := byCode[code]; ok {
		return l, true
	}
	if l, ok := byDetect[PrimarySubtag(code)]; ok {
		return l, true
	}
	return invalid, false
}

// Parse accepts either a service code ("zh-CN") or a display name
// ("Chinese (Simplified)")
func Parse(s string) (Language, error) {
	if l, ok := FromCode(s); ok {
		return l, nil
	}
	if l, ok := FromName(s); ok {
		return l, nil
	}
	return invalid, fmt.Errorf("unsupported language: %q", s)
}
