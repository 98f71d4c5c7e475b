/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"encoding/json"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed games
var embeddedQuizzes embed.FS

const maxOptionsPerQuestion = 5

// Question options are keyed by the letters A through E.
func validOption(letter string) bool {
	return len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'E'
}

type Question struct {
	ID      string            `json:"id" yaml:"id"`
	Title   string            `json:"title" yaml:"title"`
	Options map[string]string `json:"options" yaml:"options"`
	Correct string            `json:"correct" yaml:"correct"`
	Image   string            `json:"image,omitempty" yaml:"image,omitempty"`
}

type Game struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

type Topic struct {
	ID    string
	Title string
	Games []*Game
}

// Catalog is the read-only set of quiz packs available to the match.
// It is assembled once at startup and never mutated afterwards.
type Catalog struct {
	topics []Topic
	byID   map[string]*Game
}

func (c *Catalog) Topics() []Topic {
	return c.topics
}

func (c *Catalog) Game(id string) (*Game, bool) {
	g, ok := c.byID[id]
	return g, ok
}

// loadCatalog reads quiz packs from each filesystem in order, later ones
// overriding earlier ones by qualified game id. The expected layout is
// <topic>/<pack>.{json,yaml,yml}; the game id becomes "<topic>/<id>".
func loadCatalog(logger zerolog.Logger, fss ...fs.FS) (*Catalog, error) {
	type entry struct {
		topicID string
		game    *Game
	}

	entries := make(map[string]entry)

	for _, fsys := range fss {
		err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}

			ext := strings.ToLower(path.Ext(p))
			if ext != ".json" && ext != ".yaml" && ext != ".yml" {
				return nil
			}

			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}

			var game Game
			if ext == ".json" {
				err = json.Unmarshal(data, &game)
			} else {
				err = yaml.Unmarshal(data, &game)
			}
			if err != nil {
				logger.Warn().Str("file", p).Err(err).Msg("CATALOG: Skipping unreadable quiz pack")
				return nil
			}

			topicID := "general"
			if parts := strings.Split(p, "/"); len(parts) >= 2 {
				topicID = parts[0]
			}

			if game.ID == "" {
				game.ID = strings.TrimSuffix(path.Base(p), ext)
			}
			if game.Title == "" {
				logger.Warn().Str("file", p).Msg("CATALOG: Skipping untitled quiz pack")
				return nil
			}

			game.Questions = usableQuestions(logger, game.ID, game.Questions)
			if len(game.Questions) == 0 {
				logger.Warn().Str("file", p).Msg("CATALOG: Skipping quiz pack with no usable questions")
				return nil
			}

			game.ID = topicID + "/" + game.ID
			entries[game.ID] = entry{topicID: topicID, game: &game}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	byTopic := make(map[string][]*Game)
	byID := make(map[string]*Game, len(entries))
	for _, e := range entries {
		byTopic[e.topicID] = append(byTopic[e.topicID], e.game)
		byID[e.game.ID] = e.game
	}

	topics := make([]Topic, 0, len(byTopic))
	for id, games := range byTopic {
		sort.Slice(games, func(i, j int) bool {
			return games[i].Title < games[j].Title
		})
		topics = append(topics, Topic{
			ID:    id,
			Title: topicTitle(id),
			Games: games,
		})
	}
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Title < topics[j].Title
	})

	return &Catalog{topics: topics, byID: byID}, nil
}

// usableQuestions drops defective questions rather than surfacing them
// as runtime faults during a match.
func usableQuestions(logger zerolog.Logger, gameID string, questions []Question) []Question {
	usable := make([]Question, 0, len(questions))

	for _, q := range questions {
		reason := ""
		switch {
		case q.Title == "":
			reason = "missing title"
		case len(q.Options) == 0:
			reason = "no options"
		case len(q.Options) > maxOptionsPerQuestion:
			reason = "too many options"
		default:
			for letter := range q.Options {
				if !validOption(letter) {
					reason = "invalid option letter " + letter
					break
				}
			}
			if reason == "" {
				if _, ok := q.Options[q.Correct]; !ok {
					reason = "correct option not among options"
				}
			}
		}

		if reason != "" {
			logger.Warn().Str("game", gameID).Str("question", q.ID).Msg("CATALOG: Excluding defective question: " + reason)
			continue
		}

		usable = append(usable, q)
	}

	return usable
}

func topicTitle(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
