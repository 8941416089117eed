package cache

const schema = `
-- The 'cards' table maps a card id to its category and display text.
-- Rows are advisory: every category read from here is re-validated
-- against the filesystem before use.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    front_text TEXT NOT NULL,
    back_text TEXT NOT NULL,
    category TEXT NOT NULL
);

-- The 'strength' table memoizes the last computed memory strength so
-- listings do not have to re-read every card file.
CREATE TABLE IF NOT EXISTS strength (
    id TEXT PRIMARY KEY,
    strength REAL NOT NULL,
    computed_at DATETIME NOT NULL,

    FOREIGN KEY(id) REFERENCES cards(id)
);
`
