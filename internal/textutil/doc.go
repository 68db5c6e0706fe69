// Package textutil provides the title text helpers shared by the match engine
// and the metadata providers.
//
// The primary use cases are:
//   - Normalizing game titles so "Age of Empires III" and "age of empires 3"
//     group together
//   - Scoring how similar two titles are on a 0..100 scale
//   - Cleaning provider titles of trademark glyphs and stray whitespace
//
// Normalization keeps letters, digits, and whitespace, lowercases the result,
// and rewrites standalone Roman numerals (1..3999) as decimal numbers.
package textutil
