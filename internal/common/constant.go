package common

// DateLayout is the layout of bulletin date fields (eventdate, entrydate).
const DateLayout = "2006-01-02"

// MaxNewFolders bounds the numbered suffixes tried by CreateUniqueFolder.
const MaxNewFolders = 1000
