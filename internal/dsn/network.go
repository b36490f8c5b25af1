// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var numericPort = regexp.MustCompile(`^\d+$`)

// networkSpec describes the URL shape shared by server-based engines.
type networkSpec struct {
	dialect     Dialect
	schemes     []string
	defaultPort string
	requireUser bool
	requireDB   bool
	example     string
}

func (s networkSpec) hint(what string) string {
	return fmt.Sprintf("provide %s in format %s", what, s.example)
}

// parse tries standard URL parsing first and falls back to a manual split when
// the password contains characters that are not URL-encoded.
func (s networkSpec) parse(dsn string) (*DSNInfo, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, NewParseError(dsn, "empty DSN", fmt.Sprintf("provide a valid %s connection string", s.dialect))
	}

	remainder := ""
	for _, scheme := range s.schemes {
		prefix := scheme + "://"
		if len(dsn) >= len(prefix) && strings.EqualFold(dsn[:len(prefix)], prefix) {
			remainder = dsn[len(prefix):]
			break
		}
	}
	if remainder == "" {
		return nil, NewParseError(dsn, "missing or invalid scheme", "use "+strings.Join(s.schemes, ":// or ")+"://")
	}

	if parsed, err := url.Parse(dsn); err == nil && parsed.Host != "" {
		return s.fromURL(parsed, dsn)
	}
	return s.manualParse(remainder, dsn)
}

func (s networkSpec) fromURL(parsed *url.URL, original string) (*DSNInfo, error) {
	info := &DSNInfo{
		Type:     s.dialect,
		Host:     parsed.Hostname(),
		Port:     parsed.Port(),
		Database: strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/")),
		Params:   make(map[string]string),
		Original: original,
	}
	if strings.Contains(parsed.Host, ",") {
		// replica-set style host lists keep the raw host section
		info.Host = parsed.Host
		info.Port = ""
	}
	if parsed.User != nil {
		info.User = parsed.User.Username()
		info.Password, _ = parsed.User.Password()
	}
	for key, values := range parsed.Query() {
		if len(values) > 0 {
			info.Params[key] = values[0]
		}
	}
	return s.finish(info)
}

func (s networkSpec) manualParse(remainder, original string) (*DSNInfo, error) {
	info := &DSNInfo{
		Type:     s.dialect,
		Params:   make(map[string]string),
		Original: original,
	}

	hostAndDB := remainder
	if at := strings.LastIndex(remainder, "@"); at != -1 {
		authPart := remainder[:at]
		hostAndDB = remainder[at+1:]
		if colon := strings.Index(authPart, ":"); colon == -1 {
			info.User = authPart
		} else {
			info.User = authPart[:colon]
			info.Password = authPart[colon+1:]
		}
	} else if s.requireUser {
		return nil, NewParseError(original, "missing @ separator", "format should be "+s.example)
	}

	hostPart := hostAndDB
	dbAndParams := ""
	if slash := strings.Index(hostAndDB, "/"); slash != -1 {
		hostPart = hostAndDB[:slash]
		dbAndParams = hostAndDB[slash+1:]
	} else if s.requireDB {
		return nil, NewParseError(original, "missing / before database name", "format should be "+s.example)
	}

	if host, port, ok := strings.Cut(hostPart, ":"); ok && !strings.Contains(hostPart, ",") {
		info.Host = host
		info.Port = port
	} else {
		info.Host = hostPart
	}

	db, paramStr, _ := strings.Cut(dbAndParams, "?")
	info.Database = strings.TrimSpace(db)
	for _, param := range strings.Split(paramStr, "&") {
		if k, v, ok := strings.Cut(param, "="); ok {
			info.Params[k] = v
		}
	}

	return s.finish(info)
}

func (s networkSpec) finish(info *DSNInfo) (*DSNInfo, error) {
	if info.Port == "" && !strings.Contains(info.Host, ",") {
		info.Port = s.defaultPort
	}
	if s.requireUser && strings.TrimSpace(info.User) == "" {
		return nil, NewParseError(info.Original, "missing username", s.hint("username"))
	}
	if strings.TrimSpace(info.Host) == "" {
		return nil, NewParseError(info.Original, "missing host", s.hint("host"))
	}
	if s.requireDB && info.Database == "" {
		return nil, NewParseError(info.Original, "missing database name", s.hint("database"))
	}
	return info, nil
}

func (s networkSpec) validate(dsn string) error {
	info, err := s.parse(dsn)
	if err != nil {
		return err
	}
	if info.Port != "" && !numericPort.MatchString(info.Port) {
		return NewParseError(dsn, fmt.Sprintf("invalid port number: %s", info.Port), "port must be numeric")
	}
	return nil
}

// encodeParams renders params in a stable order.
func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
