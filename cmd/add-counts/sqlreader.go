// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

type sqlToken int

const (
	unexpected = iota
	word       // DROP, TABLE, CHARSET, blob, float, int, unsigned, _binary
	name       // `page_props`, `pp_propname_sortkey_page`
	number     // 12, 12.3, -4
	text       // "foo"
	comment    // -- MySQL dump
	leftParen
	rightParen
	comma
	semicolon
	minus
	slash
)

type sqlLexer struct {
	reader *bufio.Reader
}

func newSQLLexer(r io.Reader) *sqlLexer {
	return &sqlLexer{reader: bufio.NewReader(r)}
}

func (lex *sqlLexer) read() (sqlToken, string, error) {
	var c rune
	var err error
	for {
		c, _, err = lex.reader.ReadRune()
		if err != nil || !unicode.IsSpace(c) {
			break
		}
	}
	if err != nil {
		return unexpected, "", err
	}

	switch c {
	case '`':
		text, err := lex.readUntil('`')
		if err != nil {
			return unexpected, "", err
		}
		return name, text, err
	case '-':
		next, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			return minus, "", nil
		} else if err != nil {
			return unexpected, "", err
		}
		if unreadErr := lex.reader.UnreadRune(); unreadErr != nil {
			return unexpected, "", unreadErr
		}
		if next == '-' {
			text, err := lex.readUntil('\n')
			if err != nil {
				return unexpected, "", err
			}
			return comment, strings.TrimSpace(text[1:len(text)]), nil
		}
		if isNumberStart(next) {
			return lex.readNumber(c)
		}
		return minus, "", nil
	case '\'':
		t, err := lex.readQuoted()
		if err != nil {
			return unexpected, "", err
		}
		return text, t, err
	case '/':
		next, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			return slash, "", nil
		} else if err != nil {
			return unexpected, "", err
		}
		if next == '*' {
			return lex.readSlashStarComment()
		}
		if unreadErr := lex.reader.UnreadRune(); unreadErr != nil {
			return unexpected, "", unreadErr
		}
		return slash, "", err
	case '(':
		return leftParen, "", nil
	case ')':
		return rightParen, "", nil
	case ',':
		return comma, "", nil
	case ';':
		return semicolon, "", nil
	}
	if isWordChar(c) {
		return lex.readWord(c)
	}
	if isNumberStart(c) {
		return lex.readNumber(c)
	}
	return unexpected, string(c), nil
}

func (lex *sqlLexer) readWord(start rune) (sqlToken, string, error) {
	var buf strings.Builder
	buf.WriteRune(start)
	for {
		c, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			break
		} else if err != nil {
			return unexpected, "", err
		}
		if isWordChar(c) {
			buf.WriteRune(c)
			continue
		}
		if err := lex.reader.UnreadRune(); err != nil {
			return unexpected, "", err
		}
		break
	}
	text := buf.String()
	return word, text, nil
}

func (lex *sqlLexer) readNumber(start rune) (sqlToken, string, error) {
	gotDot := (start == '.')
	gotExp := false
	var buf strings.Builder
	buf.WriteRune(start)
	for {
		c, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			break
		} else if err != nil {
			return unexpected, "", err
		}
		if c == '.' && !gotDot {
			buf.WriteRune(c)
			gotDot = true
			continue
		}
		if c >= '0' && c <= '9' {
			buf.WriteRune(c)
			continue
		}
		if (c == 'e' || c == 'E') && !gotExp {
			// Floats like page_random may be dumped as 9.8e-05.
			buf.WriteRune(c)
			gotExp = true
			if sign, _, err := lex.reader.ReadRune(); err == nil {
				if sign == '-' || sign == '+' {
					buf.WriteRune(sign)
				} else if err := lex.reader.UnreadRune(); err != nil {
					return unexpected, "", err
				}
			}
			continue
		}
		if err := lex.reader.UnreadRune(); err != nil {
			return unexpected, "", err
		}
		break
	}
	text := buf.String()
	return number, text, nil
}

func (lex *sqlLexer) readUntil(delim rune) (string, error) {
	var buf strings.Builder
	for {
		c, _, err := lex.reader.ReadRune()
		if c == delim || err == io.EOF {
			break
		} else if err != nil {
			return "", err
		}
		buf.WriteRune(c)
	}
	return buf.String(), nil
}

// ReadQuoted reads a string literal up to its closing quote,
// resolving the backslash escapes written by mysqldump.
func (lex *sqlLexer) readQuoted() (string, error) {
	var buf strings.Builder
	for {
		c, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		} else if err != nil {
			return "", err
		}
		if c == '\'' {
			return buf.String(), nil
		}
		if c != '\\' {
			buf.WriteRune(c)
			continue
		}

		c, _, err = lex.reader.ReadRune()
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		} else if err != nil {
			return "", err
		}
		switch c {
		case '0':
			buf.WriteByte(0)
		case 'n':
			buf.WriteByte('\n')
		case 'r':
			buf.WriteByte('\r')
		case 't':
			buf.WriteByte('\t')
		case 'Z':
			buf.WriteByte(0x1a)
		default:
			buf.WriteRune(c)
		}
	}
}

func (lex *sqlLexer) readSlashStarComment() (sqlToken, string, error) {
	var buf strings.Builder
	var last rune
	for {
		c, _, err := lex.reader.ReadRune()
		if err == io.EOF {
			break
		} else if err != nil {
			return unexpected, "", err
		}
		if c == '/' && last == '*' {
			break
		}
		buf.WriteRune(c)
		last = c
	}
	txt := strings.TrimSpace(strings.TrimSuffix(buf.String(), "*"))
	return comment, txt, nil
}

func isNumberStart(c rune) bool {
	return (c >= '0' && c <= '9') || c == '.'
}

func isWordChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '_'
}

// SQLReader reads the rows of a table from a MySQL dump file,
// such as enwiki-20240301-redirect.sql.gz.
type SQLReader struct {
	lexer    *sqlLexer
	table    string
	columns  []string
	inInsert bool
}

// NewSQLReader parses the CREATE TABLE statement at the beginning
// of a MySQL dump, so that the column names are known before
// the first row gets read.
func NewSQLReader(r io.Reader) (*SQLReader, error) {
	reader := &SQLReader{lexer: newSQLLexer(r)}
	if err := reader.readCreateTable(); err != nil {
		return nil, err
	}
	return reader, nil
}

// Table returns the name of the dumped table, such as "redirect".
func (r *SQLReader) Table() string {
	return r.table
}

// Columns returns the column names of the dumped table.
func (r *SQLReader) Columns() []string {
	return r.columns
}

func (r *SQLReader) readCreateTable() error {
	var last string
	for {
		tok, txt, err := r.lexer.read()
		if err == io.EOF {
			return fmt.Errorf("no CREATE TABLE statement in SQL dump")
		} else if err != nil {
			return err
		}
		if tok == word && strings.EqualFold(last, "CREATE") && strings.EqualFold(txt, "TABLE") {
			break
		}
		if tok == word {
			last = txt
		} else {
			last = ""
		}
	}

	tok, txt, err := r.lexer.read()
	if err != nil {
		return err
	}
	if tok != name {
		return fmt.Errorf("expected table name after CREATE TABLE, got %q", txt)
	}
	r.table = txt

	if tok, _, err := r.lexer.read(); err != nil {
		return err
	} else if tok != leftParen {
		return fmt.Errorf("expected ( after CREATE TABLE `%s`", r.table)
	}

	// Column definitions start with a quoted name; index definitions
	// such as PRIMARY KEY start with a word.
	depth, itemStart := 1, true
	for depth > 0 {
		tok, txt, err := r.lexer.read()
		if err != nil {
			return err
		}
		if itemStart && tok == name {
			r.columns = append(r.columns, txt)
		}
		itemStart = false
		switch tok {
		case leftParen:
			depth += 1
		case rightParen:
			depth -= 1
		case comma:
			itemStart = (depth == 1)
		}
	}
	return nil
}

// Read returns the next row of the dumped table, or nil after
// the last row. NULL values are returned as empty strings.
func (r *SQLReader) Read() ([]string, error) {
	for {
		if !r.inInsert {
			found, err := r.skipToValues()
			if err != nil || !found {
				return nil, err
			}
			r.inInsert = true
		}

		tok, txt, err := r.lexer.read()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		switch tok {
		case leftParen:
			return r.readTuple()
		case comma:
			continue
		case semicolon:
			r.inInsert = false
		default:
			return nil, fmt.Errorf("unexpected token %q in INSERT INTO `%s`", txt, r.table)
		}
	}
}

// SkipToValues advances to the tuples of the next INSERT statement.
func (r *SQLReader) skipToValues() (bool, error) {
	sawInsert := false
	for {
		tok, txt, err := r.lexer.read()
		if err == io.EOF && !sawInsert {
			return false, nil
		} else if err != nil {
			return false, unexpectedEOF(err)
		}
		if tok != word {
			continue
		}
		if strings.EqualFold(txt, "INSERT") {
			sawInsert = true
		} else if sawInsert && strings.EqualFold(txt, "VALUES") {
			return true, nil
		}
	}
}

func (r *SQLReader) readTuple() ([]string, error) {
	row := make([]string, 0, len(r.columns))
	negative := false
	for {
		tok, txt, err := r.lexer.read()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		switch tok {
		case number:
			if negative {
				txt = "-" + txt
				negative = false
			}
			row = append(row, txt)
		case text:
			row = append(row, txt)
		case word:
			if strings.EqualFold(txt, "NULL") {
				row = append(row, "")
			} else if !strings.HasPrefix(txt, "_") { // _binary 'foo'
				return nil, fmt.Errorf("unexpected word %q in row of `%s`", txt, r.table)
			}
		case minus:
			negative = true
		case comma:
		case rightParen:
			if len(row) != len(r.columns) {
				return nil, fmt.Errorf("row of `%s` has %d values, expected %d", r.table, len(row), len(r.columns))
			}
			return row, nil
		default:
			return nil, fmt.Errorf("unexpected token %q in row of `%s`", txt, r.table)
		}
	}
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
